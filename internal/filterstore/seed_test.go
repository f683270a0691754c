package filterstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
filter_sets:
  - id: jita-watch
    guild_id: 1
    target_ids: [10, 11]
    filters:
      - system:30000142
      - ship:670:exclude
  - id: everything
    guild_id: 1
    target_ids: [20]
    include_npc: true
`

func TestParseSeed(t *testing.T) {
	sets, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, sets, 2)

	assert.Equal(t, "jita-watch", sets[0].ID)
	assert.Equal(t, []uint64{10, 11}, sets[0].TargetIDs)
	assert.Equal(t, []string{"system:30000142", "ship:670:exclude"}, sets[0].Filters)
	assert.False(t, sets[0].IncludeNPC)

	assert.True(t, sets[1].IncludeNPC)
	assert.Empty(t, sets[1].Filters)
}

func TestParseSeed_Errors(t *testing.T) {
	_, err := ParseSeed([]byte("filter_sets: [{target_ids: [1]}]"))
	assert.Error(t, err)

	_, err = ParseSeed([]byte("filter_sets: {"))
	assert.Error(t, err)
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	sets, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Len(t, sets, 2)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
