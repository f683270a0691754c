package filterstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "killrelay/pkg/errors"
	"killrelay/pkg/models"
)

// runStoreContract exercises behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		set := &models.FilterSet{GuildID: 1, TargetIDs: []uint64{10}, Filters: []string{"system:30000142"}}
		require.NoError(t, store.Create(ctx, set))
		assert.NotEmpty(t, set.ID)
		assert.Equal(t, int64(1), set.Version)

		got, err := store.Get(ctx, set.ID)
		require.NoError(t, err)
		assert.Equal(t, set.TargetIDs, got.TargetIDs)
		assert.Equal(t, set.Filters, got.Filters)
		assert.Equal(t, uint64(1), got.GuildID)
	})

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "missing")
		assert.True(t, pkgerrors.IsNotFound(err))

		_, err = store.GetByTarget(ctx, 404)
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("requires targets", func(t *testing.T) {
		store := newStore(t)
		err := store.Create(ctx, &models.FilterSet{Filters: []string{"system:1"}})
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("empty filter list is legal", func(t *testing.T) {
		store := newStore(t)
		set := &models.FilterSet{TargetIDs: []uint64{10}}
		require.NoError(t, store.Create(ctx, set))

		got, err := store.Get(ctx, set.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Filters)
	})

	t.Run("get by target", func(t *testing.T) {
		store := newStore(t)
		set := &models.FilterSet{ID: "multi", TargetIDs: []uint64{10, 11}}
		require.NoError(t, store.Create(ctx, set))

		got, err := store.GetByTarget(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, "multi", got.ID)
	})

	t.Run("target bound once", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, &models.FilterSet{ID: "a", TargetIDs: []uint64{10}}))

		err := store.Create(ctx, &models.FilterSet{ID: "b", TargetIDs: []uint64{11, 10}})
		assert.True(t, pkgerrors.IsConflict(err))
	})

	t.Run("duplicate id", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, &models.FilterSet{ID: "a", TargetIDs: []uint64{10}}))

		err := store.Create(ctx, &models.FilterSet{ID: "a", TargetIDs: []uint64{11}})
		assert.True(t, pkgerrors.IsConflict(err))
	})

	t.Run("list in declaration order", func(t *testing.T) {
		store := newStore(t)
		for i, id := range []string{"zulu", "alpha", "mike"} {
			require.NoError(t, store.Create(ctx, &models.FilterSet{ID: id, TargetIDs: []uint64{uint64(100 + i)}}))
		}

		sets, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, sets, 3)
		assert.Equal(t, "zulu", sets[0].ID)
		assert.Equal(t, "alpha", sets[1].ID)
		assert.Equal(t, "mike", sets[2].ID)
		assert.Less(t, sets[0].Seq, sets[1].Seq)
		assert.Less(t, sets[1].Seq, sets[2].Seq)
	})

	t.Run("update bumps version and rebinds targets", func(t *testing.T) {
		store := newStore(t)
		set := &models.FilterSet{ID: "s", TargetIDs: []uint64{10}, Filters: []string{"system:1"}}
		require.NoError(t, store.Create(ctx, set))
		seq := set.Seq

		set.TargetIDs = []uint64{20}
		set.Filters = []string{"corp:2"}
		set.IncludeNPC = true
		require.NoError(t, store.Update(ctx, set))
		assert.Equal(t, int64(2), set.Version)
		assert.Equal(t, seq, set.Seq)

		got, err := store.GetByTarget(ctx, 20)
		require.NoError(t, err)
		assert.Equal(t, []string{"corp:2"}, got.Filters)
		assert.True(t, got.IncludeNPC)

		_, err = store.GetByTarget(ctx, 10)
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("update missing", func(t *testing.T) {
		store := newStore(t)
		err := store.Update(ctx, &models.FilterSet{ID: "missing", TargetIDs: []uint64{10}})
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("add and remove filters", func(t *testing.T) {
		store := newStore(t)
		set := &models.FilterSet{ID: "s", TargetIDs: []uint64{10}, Filters: []string{"system:1"}}
		require.NoError(t, store.Create(ctx, set))

		got, err := store.AddFilter(ctx, "s", "corp:2")
		require.NoError(t, err)
		assert.Equal(t, []string{"system:1", "corp:2"}, got.Filters)
		assert.Equal(t, int64(2), got.Version)

		got, err = store.AddFilter(ctx, "s", "corp:2")
		require.NoError(t, err)
		assert.Equal(t, []string{"system:1", "corp:2"}, got.Filters)
		assert.Equal(t, int64(2), got.Version)

		got, err = store.RemoveFilter(ctx, "s", "system:1")
		require.NoError(t, err)
		assert.Equal(t, []string{"corp:2"}, got.Filters)
		assert.Equal(t, int64(3), got.Version)

		_, err = store.RemoveFilter(ctx, "s", "system:1")
		assert.True(t, pkgerrors.IsNotFound(err))

		_, err = store.AddFilter(ctx, "missing", "corp:2")
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, &models.FilterSet{ID: "s", TargetIDs: []uint64{10}}))
		require.NoError(t, store.Delete(ctx, "s"))

		_, err := store.Get(ctx, "s")
		assert.True(t, pkgerrors.IsNotFound(err))
		_, err = store.GetByTarget(ctx, 10)
		assert.True(t, pkgerrors.IsNotFound(err))

		assert.True(t, pkgerrors.IsNotFound(store.Delete(ctx, "s")))

		require.NoError(t, store.Create(ctx, &models.FilterSet{ID: "t", TargetIDs: []uint64{10}}))
	})
}
