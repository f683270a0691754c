package filterstore

import (
	"context"
	"sync"
	"time"

	"killrelay/pkg/models"
)

// MemoryStore keeps filter sets in process. It is used for local runs and
// tests, optionally seeded from a YAML file.
type MemoryStore struct {
	mu      sync.RWMutex
	sets    map[string]*models.FilterSet
	targets map[uint64]string
	seq     int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sets:    make(map[string]*models.FilterSet),
		targets: make(map[uint64]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) List(ctx context.Context) ([]models.FilterSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FilterSet, 0, len(s.sets))
	for _, set := range s.sets {
		out = append(out, *clone(set))
	}
	sortDeclarationOrder(out)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.FilterSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(set), nil
}

func (s *MemoryStore) GetByTarget(ctx context.Context, targetID uint64) (*models.FilterSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.targets[targetID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s.sets[id]), nil
}

func (s *MemoryStore) Create(ctx context.Context, set *models.FilterSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := prepareCreate(set, s.now()); err != nil {
		return err
	}
	if _, exists := s.sets[set.ID]; exists {
		return errConflictID(set.ID)
	}
	if err := s.checkTargets(set); err != nil {
		return err
	}

	s.seq++
	set.Seq = s.seq
	s.put(clone(set))
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, set *models.FilterSet) error {
	if err := validate(set); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sets[set.ID]
	if !ok {
		return ErrNotFound
	}
	if err := s.checkTargets(set); err != nil {
		return err
	}

	set.Version = current.Version + 1
	set.Seq = current.Seq
	set.CreatedAt = current.CreatedAt
	set.UpdatedAt = s.now()
	if set.Filters == nil {
		set.Filters = []string{}
	}

	s.unbind(current)
	s.put(clone(set))
	return nil
}

func (s *MemoryStore) AddFilter(ctx context.Context, id, filter string) (*models.FilterSet, error) {
	return s.mutate(id, func(set *models.FilterSet) error {
		appendFilter(set, filter)
		return nil
	})
}

func (s *MemoryStore) RemoveFilter(ctx context.Context, id, filter string) (*models.FilterSet, error) {
	return s.mutate(id, func(set *models.FilterSet) error {
		if !removeFilter(set, filter) {
			return ErrFilterNotFound
		}
		return nil
	})
}

func (s *MemoryStore) mutate(id string, fn func(*models.FilterSet) error) (*models.FilterSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sets[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := clone(current)
	before := len(next.Filters)
	if err := fn(next); err != nil {
		return nil, err
	}
	if len(next.Filters) == before {
		return clone(current), nil
	}

	next.Version++
	next.UpdatedAt = s.now()
	s.sets[id] = next
	return clone(next), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[id]
	if !ok {
		return ErrNotFound
	}
	s.unbind(set)
	delete(s.sets, id)
	return nil
}

// Seed inserts sets in order. Existing IDs are replaced.
func (s *MemoryStore) Seed(ctx context.Context, sets []models.FilterSet) error {
	for i := range sets {
		set := sets[i]
		if _, err := s.Get(ctx, set.ID); err == nil {
			if err := s.Update(ctx, &set); err != nil {
				return err
			}
			continue
		}
		if err := s.Create(ctx, &set); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) checkTargets(set *models.FilterSet) error {
	for _, t := range set.TargetIDs {
		if owner, ok := s.targets[t]; ok && owner != set.ID {
			return errTargetTaken(t, owner)
		}
	}
	return nil
}

func (s *MemoryStore) put(set *models.FilterSet) {
	s.sets[set.ID] = set
	for _, t := range set.TargetIDs {
		s.targets[t] = set.ID
	}
}

func (s *MemoryStore) unbind(set *models.FilterSet) {
	for _, t := range set.TargetIDs {
		if s.targets[t] == set.ID {
			delete(s.targets, t)
		}
	}
}
