package filterstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"killrelay/pkg/metrics"
	"killrelay/pkg/models"
)

const pgColumns = `id, guild_id, target_ids, filters, include_npc, version, created_at, updated_at, seq`

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFilterSet(row rowScanner) (*models.FilterSet, error) {
	var (
		set     models.FilterSet
		guildID int64
		targets pq.Int64Array
		filters []byte
	)
	if err := row.Scan(&set.ID, &guildID, &targets, &filters, &set.IncludeNPC, &set.Version, &set.CreatedAt, &set.UpdatedAt, &set.Seq); err != nil {
		return nil, err
	}
	set.GuildID = uint64(guildID)
	set.TargetIDs = make([]uint64, len(targets))
	for i, t := range targets {
		set.TargetIDs[i] = uint64(t)
	}
	if err := json.Unmarshal(filters, &set.Filters); err != nil {
		return nil, fmt.Errorf("failed to decode filters of %s: %w", set.ID, err)
	}
	if set.Filters == nil {
		set.Filters = []string{}
	}
	return &set, nil
}

func int64Targets(ids []uint64) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func encodeFilters(filters []string) (string, error) {
	if filters == nil {
		filters = []string{}
	}
	raw, err := json.Marshal(filters)
	if err != nil {
		return "", fmt.Errorf("failed to encode filters: %w", err)
	}
	return string(raw), nil
}

func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	metrics.IncDatabaseQuery("filterstore", "postgres", operation, status)
	metrics.ObserveDatabaseQueryDuration("filterstore", "postgres", operation, time.Since(start))
}

func (s *PostgresStore) List(ctx context.Context) (sets []models.FilterSet, err error) {
	defer func(start time.Time) { observe("list", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT `+pgColumns+` FROM filter_sets ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list filter sets: %w", err)
	}
	defer rows.Close()

	sets = make([]models.FilterSet, 0)
	for rows.Next() {
		set, err := scanFilterSet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan filter set: %w", err)
		}
		sets = append(sets, *set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return sets, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (set *models.FilterSet, err error) {
	defer func(start time.Time) { observe("get", start, err) }(time.Now())

	set, err = scanFilterSet(s.db.QueryRowContext(ctx, `SELECT `+pgColumns+` FROM filter_sets WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get filter set: %w", err)
	}
	return set, nil
}

func (s *PostgresStore) GetByTarget(ctx context.Context, targetID uint64) (set *models.FilterSet, err error) {
	defer func(start time.Time) { observe("get_by_target", start, err) }(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgColumns+` FROM filter_sets WHERE $1 = ANY(target_ids) LIMIT 1`,
		int64(targetID),
	)
	set, err = scanFilterSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get filter set by target: %w", err)
	}
	return set, nil
}

// lockTargets serializes writers that bind the same targets. The locks are
// taken in ascending order and released when the transaction ends.
func lockTargets(ctx context.Context, tx *sql.Tx, targets []uint64) error {
	ids := append([]uint64(nil), targets...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(id)); err != nil {
			return fmt.Errorf("failed to lock target %d: %w", id, err)
		}
	}
	return nil
}

// checkTargets fails when another set already owns one of the targets.
// Callers hold the target locks.
func checkTargets(ctx context.Context, tx *sql.Tx, set *models.FilterSet) error {
	var (
		owner   string
		targets pq.Int64Array
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, target_ids FROM filter_sets WHERE target_ids && $1 AND id <> $2 LIMIT 1`,
		int64Targets(set.TargetIDs), set.ID,
	).Scan(&owner, &targets)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check targets: %w", err)
	}

	for _, t := range targets {
		if set.HasTarget(uint64(t)) {
			return errTargetTaken(uint64(t), owner)
		}
	}
	return errTargetTaken(set.TargetIDs[0], owner)
}

func (s *PostgresStore) Create(ctx context.Context, set *models.FilterSet) (err error) {
	defer func(start time.Time) { observe("create", start, err) }(time.Now())

	if err := prepareCreate(set, s.now()); err != nil {
		return err
	}
	filters, err := encodeFilters(set.Filters)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockTargets(ctx, tx, set.TargetIDs); err != nil {
		return err
	}
	if err := checkTargets(ctx, tx, set); err != nil {
		return err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO filter_sets (id, guild_id, target_ids, filters, include_npc, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`,
		set.ID, int64(set.GuildID), int64Targets(set.TargetIDs), filters,
		set.IncludeNPC, set.Version, set.CreatedAt, set.UpdatedAt,
	).Scan(&set.Seq)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errConflictID(set.ID)
		}
		return fmt.Errorf("failed to create filter set: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit filter set: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, set *models.FilterSet) (err error) {
	defer func(start time.Time) { observe("update", start, err) }(time.Now())

	if err := validate(set); err != nil {
		return err
	}
	if set.Filters == nil {
		set.Filters = []string{}
	}
	filters, err := encodeFilters(set.Filters)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockTargets(ctx, tx, set.TargetIDs); err != nil {
		return err
	}
	if err := checkTargets(ctx, tx, set); err != nil {
		return err
	}

	set.UpdatedAt = s.now()
	err = tx.QueryRowContext(ctx, `
		UPDATE filter_sets
		SET guild_id = $2, target_ids = $3, filters = $4, include_npc = $5, version = version + 1, updated_at = $6
		WHERE id = $1
		RETURNING version, created_at, seq
	`,
		set.ID, int64(set.GuildID), int64Targets(set.TargetIDs), filters, set.IncludeNPC, set.UpdatedAt,
	).Scan(&set.Version, &set.CreatedAt, &set.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update filter set: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit filter set: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddFilter(ctx context.Context, id, filter string) (*models.FilterSet, error) {
	return s.mutate(ctx, "add_filter", id, func(set *models.FilterSet) error {
		appendFilter(set, filter)
		return nil
	})
}

func (s *PostgresStore) RemoveFilter(ctx context.Context, id, filter string) (*models.FilterSet, error) {
	return s.mutate(ctx, "remove_filter", id, func(set *models.FilterSet) error {
		if !removeFilter(set, filter) {
			return ErrFilterNotFound
		}
		return nil
	})
}

// mutate applies fn to the locked row. The version is only bumped when the
// filter list changed.
func (s *PostgresStore) mutate(ctx context.Context, operation, id string, fn func(*models.FilterSet) error) (set *models.FilterSet, err error) {
	defer func(start time.Time) { observe(operation, start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	set, err = scanFilterSet(tx.QueryRowContext(ctx, `SELECT `+pgColumns+` FROM filter_sets WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock filter set: %w", err)
	}

	before := len(set.Filters)
	if err := fn(set); err != nil {
		return nil, err
	}
	if len(set.Filters) == before {
		return set, nil
	}

	filters, err := encodeFilters(set.Filters)
	if err != nil {
		return nil, err
	}
	set.Version++
	set.UpdatedAt = s.now()

	if _, err := tx.ExecContext(ctx,
		`UPDATE filter_sets SET filters = $2, version = $3, updated_at = $4 WHERE id = $1`,
		id, filters, set.Version, set.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update filters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit filter set: %w", err)
	}
	return set, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM filter_sets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete filter set: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
