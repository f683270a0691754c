package filterstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "killrelay/pkg/errors"
	"killrelay/pkg/models"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewPostgresStore(db)
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func filterSetColumns() []string {
	return []string{"id", "guild_id", "target_ids", "filters", "include_npc", "version", "created_at", "updated_at", "seq"}
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows(filterSetColumns()).
		AddRow("a", int64(1), "{10,11}", `["system:30000142"]`, false, int64(1), fixedNow, fixedNow, int64(1)).
		AddRow("b", int64(1), "{20}", `[]`, true, int64(3), fixedNow, fixedNow, int64(2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM filter_sets ORDER BY seq ASC")).WillReturnRows(rows)

	sets, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sets, 2)

	assert.Equal(t, "a", sets[0].ID)
	assert.Equal(t, []uint64{10, 11}, sets[0].TargetIDs)
	assert.Equal(t, []string{"system:30000142"}, sets[0].Filters)
	assert.True(t, sets[1].IncludeNPC)
	assert.Equal(t, []string{}, sets[1].Filters)
	assert.Equal(t, int64(3), sets[1].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List_QueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM filter_sets").WillReturnError(sql.ErrConnDone)

	_, err := store.List(context.Background())
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM filter_sets WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByTarget(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows(filterSetColumns()).
		AddRow("a", int64(1), "{10}", `["corp:2"]`, false, int64(1), fixedNow, fixedNow, int64(3))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE $1 = ANY(target_ids)")).
		WithArgs(int64(10)).
		WillReturnRows(rows)

	set, err := store.GetByTarget(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "a", set.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE target_ids && $1 AND id <> $2")).
		WithArgs(pq.Int64Array{10}, "s").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO filter_sets")).
		WithArgs("s", int64(7), pq.Int64Array{10}, `["system:1"]`, false, int64(1), fixedNow, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(12)))
	mock.ExpectCommit()

	set := &models.FilterSet{ID: "s", GuildID: 7, TargetIDs: []uint64{10}, Filters: []string{"system:1"}}
	require.NoError(t, store.Create(context.Background(), set))
	assert.Equal(t, int64(1), set.Version)
	assert.Equal(t, int64(12), set.Seq)
	assert.Equal(t, fixedNow, set.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create_TargetTaken(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE target_ids && $1 AND id <> $2")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "target_ids"}).AddRow("other", "{10,99}"))
	mock.ExpectRollback()

	err := store.Create(context.Background(), &models.FilterSet{ID: "s", TargetIDs: []uint64{10}})
	assert.True(t, pkgerrors.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create_DuplicateID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("target_ids &&").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO filter_sets").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.Create(context.Background(), &models.FilterSet{ID: "s", TargetIDs: []uint64{10}})
	assert.True(t, pkgerrors.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create_Validation(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.Create(context.Background(), &models.FilterSet{ID: "s"})
	assert.True(t, pkgerrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update(t *testing.T) {
	store, mock := newMockStore(t)
	created := fixedNow.Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("target_ids &&").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE filter_sets")).
		WithArgs("s", int64(0), pq.Int64Array{20}, `["corp:2"]`, true, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "seq"}).AddRow(int64(4), created, int64(9)))
	mock.ExpectCommit()

	set := &models.FilterSet{ID: "s", TargetIDs: []uint64{20}, Filters: []string{"corp:2"}, IncludeNPC: true}
	require.NoError(t, store.Update(context.Background(), set))
	assert.Equal(t, int64(4), set.Version)
	assert.Equal(t, int64(9), set.Seq)
	assert.Equal(t, created, set.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("target_ids &&").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("UPDATE filter_sets").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.Update(context.Background(), &models.FilterSet{ID: "s", TargetIDs: []uint64{20}})
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update_LocksTargetsInOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	for _, id := range []int64{3, 20, 41} {
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectQuery("target_ids &&").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("UPDATE filter_sets").
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "seq"}).AddRow(int64(2), fixedNow, int64(1)))
	mock.ExpectCommit()

	set := &models.FilterSet{ID: "s", TargetIDs: []uint64{41, 3, 20}}
	require.NoError(t, store.Update(context.Background(), set))
	assert.Equal(t, []uint64{41, 3, 20}, set.TargetIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create_LockFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := store.Create(context.Background(), &models.FilterSet{ID: "s", TargetIDs: []uint64{10}})
	assert.ErrorContains(t, err, "failed to lock target 10")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddFilter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 FOR UPDATE")).
		WithArgs("s").
		WillReturnRows(sqlmock.NewRows(filterSetColumns()).
			AddRow("s", int64(1), "{10}", `["system:1"]`, false, int64(2), fixedNow, fixedNow, int64(4)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE filter_sets SET filters = $2, version = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("s", `["system:1","corp:2"]`, int64(3), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	set, err := store.AddFilter(context.Background(), "s", "corp:2")
	require.NoError(t, err)
	assert.Equal(t, []string{"system:1", "corp:2"}, set.Filters)
	assert.Equal(t, int64(3), set.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddFilter_AlreadyPresent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(filterSetColumns()).
			AddRow("s", int64(1), "{10}", `["corp:2"]`, false, int64(2), fixedNow, fixedNow, int64(5)))
	mock.ExpectRollback()

	set, err := store.AddFilter(context.Background(), "s", "corp:2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), set.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RemoveFilter_Missing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(filterSetColumns()).
			AddRow("s", int64(1), "{10}", `["corp:2"]`, false, int64(2), fixedNow, fixedNow, int64(6)))
	mock.ExpectRollback()

	_, err := store.RemoveFilter(context.Background(), "s", "system:1")
	assert.ErrorIs(t, err, ErrFilterNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM filter_sets WHERE id = $1")).
		WithArgs("s").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM filter_sets WHERE id = $1")).
		WithArgs("s").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), "s"))
	assert.True(t, pkgerrors.IsNotFound(store.Delete(context.Background(), "s")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
