package filterstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"killrelay/pkg/models"
)

// steppingClock returns strictly increasing times so declaration order is
// deterministic.
func steppingClock() func() time.Time {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newTestMemoryStore(t *testing.T) Store {
	s := NewMemoryStore()
	s.now = steppingClock()
	return s
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, newTestMemoryStore)
}

func TestMemoryStore_SameInstantKeepsCreationOrder(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return frozen }

	ids := []string{"f3c1", "0a9e", "b77d", "0001"}
	for i, id := range ids {
		require.NoError(t, store.Create(ctx, &models.FilterSet{ID: id, TargetIDs: []uint64{uint64(i + 1)}}))
	}

	sets, err := store.List(ctx)
	require.NoError(t, err)
	got := make([]string, len(sets))
	for i, set := range sets {
		got[i] = set.ID
	}
	assert.Equal(t, ids, got)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, &models.FilterSet{ID: "s", TargetIDs: []uint64{10}, Filters: []string{"system:1"}}))

	got, err := store.Get(ctx, "s")
	require.NoError(t, err)
	got.Filters[0] = "system:2"

	again, err := store.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"system:1"}, again.Filters)
}

func TestMemoryStore_Seed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.now = steppingClock()

	sets := []models.FilterSet{
		{ID: "a", TargetIDs: []uint64{1}, Filters: []string{"system:1"}},
		{ID: "b", TargetIDs: []uint64{2}},
	}
	require.NoError(t, store.Seed(ctx, sets))

	sets[0].Filters = []string{"system:2"}
	require.NoError(t, store.Seed(ctx, sets[:1]))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"system:2"}, got.Filters)
	assert.Equal(t, int64(2), got.Version)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
