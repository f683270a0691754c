package topology

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	assert.Greater(t, table.Len(), 0)

	region, ok := table.RegionOf(30000142)
	require.True(t, ok)
	assert.Equal(t, uint64(10000002), region)

	region, ok = table.RegionOf(30000144)
	require.True(t, ok)
	assert.Equal(t, uint64(10000002), region)

	region, ok = table.RegionOf(30002187)
	require.True(t, ok)
	assert.Equal(t, uint64(10000043), region)

	sys, ok := table.System(30000142)
	require.True(t, ok)
	assert.Equal(t, "Jita", sys.Name)
	assert.True(t, table.Sample())
}

func TestRegionOf_Unknown(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	_, ok := table.RegionOf(31000005)
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	t.Run("without header", func(t *testing.T) {
		table, err := Load(strings.NewReader("1,2,3,Alpha\n4,5,6,Beta\n"))
		require.NoError(t, err)
		assert.Equal(t, 2, table.Len())

		region, ok := table.RegionOf(6)
		require.True(t, ok)
		assert.Equal(t, uint64(4), region)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := Load(strings.NewReader("region_id,constellation_id,system_id,name\n1,2,x,Alpha\n"))
		assert.Error(t, err)
	})

	t.Run("wrong column count", func(t *testing.T) {
		_, err := Load(strings.NewReader("1,2,3\n"))
		assert.Error(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "systems.csv")
	require.NoError(t, os.WriteFile(path, []byte("region_id,constellation_id,system_id,name\n9,8,7,Gamma\n"), 0o600))

	table, err := LoadFile(path)
	require.NoError(t, err)
	region, ok := table.RegionOf(7)
	require.True(t, ok)
	assert.Equal(t, uint64(9), region)
	assert.False(t, table.Sample())

	table, err = LoadFile("")
	require.NoError(t, err)
	_, ok = table.RegionOf(30000142)
	assert.True(t, ok)
	assert.True(t, table.Sample())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
