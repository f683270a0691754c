package filterstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	pkgerrors "killrelay/pkg/errors"
	"killrelay/pkg/models"
)

// Store persists filter sets. List returns sets in declaration order, the
// store-assigned Seq. Every mutation bumps Version. A target may be
// bound to at most one filter set.
type Store interface {
	List(ctx context.Context) ([]models.FilterSet, error)
	Get(ctx context.Context, id string) (*models.FilterSet, error)
	GetByTarget(ctx context.Context, targetID uint64) (*models.FilterSet, error)
	Create(ctx context.Context, set *models.FilterSet) error
	Update(ctx context.Context, set *models.FilterSet) error
	AddFilter(ctx context.Context, id, filter string) (*models.FilterSet, error)
	RemoveFilter(ctx context.Context, id, filter string) (*models.FilterSet, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrNotFound       = pkgerrors.ErrNotFound.WithDetail("message", "filter set not found")
	ErrFilterNotFound = pkgerrors.ErrNotFound.WithDetail("message", "filter not found in set")
)

func errTargetTaken(targetID uint64, owner string) error {
	return pkgerrors.ErrConflict.
		WithDetail("message", fmt.Sprintf("target %d is already bound to filter set %s", targetID, owner)).
		WithDetail("target_id", targetID)
}

func validate(set *models.FilterSet) error {
	if len(set.TargetIDs) == 0 {
		return pkgerrors.ErrValidation.WithDetail("message", "filter set needs at least one target")
	}
	seen := make(map[uint64]struct{}, len(set.TargetIDs))
	for _, t := range set.TargetIDs {
		if t == 0 {
			return pkgerrors.ErrValidation.WithDetail("message", "target id must be positive")
		}
		if _, dup := seen[t]; dup {
			return pkgerrors.ErrValidation.WithDetail("message", fmt.Sprintf("duplicate target %d", t))
		}
		seen[t] = struct{}{}
	}
	return nil
}

// prepareCreate validates set and fills the generated fields.
func prepareCreate(set *models.FilterSet, now time.Time) error {
	if err := validate(set); err != nil {
		return err
	}
	if set.ID == "" {
		set.ID = uuid.New().String()
	}
	if set.Filters == nil {
		set.Filters = []string{}
	}
	set.Version = 1
	set.CreatedAt = now
	set.UpdatedAt = now
	return nil
}

func clone(set *models.FilterSet) *models.FilterSet {
	out := *set
	out.TargetIDs = append([]uint64(nil), set.TargetIDs...)
	out.Filters = append([]string{}, set.Filters...)
	return &out
}

// appendFilter reports whether filter was added. Identical strings are not
// added twice.
func appendFilter(set *models.FilterSet, filter string) bool {
	if set.HasFilter(filter) {
		return false
	}
	set.Filters = append(set.Filters, filter)
	return true
}

func removeFilter(set *models.FilterSet, filter string) bool {
	for i, f := range set.Filters {
		if f == filter {
			set.Filters = append(set.Filters[:i], set.Filters[i+1:]...)
			return true
		}
	}
	return false
}

func sortDeclarationOrder(sets []models.FilterSet) {
	sort.SliceStable(sets, func(i, j int) bool {
		if sets[i].Seq != sets[j].Seq {
			return sets[i].Seq < sets[j].Seq
		}
		if !sets[i].CreatedAt.Equal(sets[j].CreatedAt) {
			return sets[i].CreatedAt.Before(sets[j].CreatedAt)
		}
		return sets[i].ID < sets[j].ID
	})
}

func errConflictID(id string) error {
	return pkgerrors.ErrConflict.WithDetail("message", fmt.Sprintf("filter set %s already exists", id))
}
