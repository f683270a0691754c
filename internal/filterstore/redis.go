package filterstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "killrelay/pkg/errors"
	"killrelay/pkg/models"
)

const (
	redisKeyPrefix    = "killrelay:filter_set:"
	redisIndexKey     = "killrelay:filter_set:index"
	redisTargetsKey   = "killrelay:filter_set:targets"
	redisSeqKey       = "killrelay:filter_set:seq"
	redisWatchRetries = 5
)

// RedisStore keeps each set as a JSON value, a sorted set for declaration
// order and a hash from target to owning set.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func redisSetKey(id string) string {
	return redisKeyPrefix + id
}

func targetField(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func decodeSet(raw string) (*models.FilterSet, error) {
	var set models.FilterSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fmt.Errorf("failed to decode filter set: %w", err)
	}
	if set.Filters == nil {
		set.Filters = []string{}
	}
	return &set, nil
}

// watch runs fn in an optimistic transaction, retrying when a watched key
// changes underneath it.
func (s *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < redisWatchRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return pkgerrors.ErrConflict.WithDetail("message", "filter set changed concurrently, retry")
}

func (s *RedisStore) List(ctx context.Context) ([]models.FilterSet, error) {
	ids, err := s.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read filter set index: %w", err)
	}
	sets := make([]models.FilterSet, 0, len(ids))
	if len(ids) == 0 {
		return sets, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisSetKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load filter sets: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		set, err := decodeSet(raw)
		if err != nil {
			return nil, err
		}
		sets = append(sets, *set)
	}
	sortDeclarationOrder(sets)
	return sets, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.FilterSet, error) {
	return s.get(ctx, s.client, id)
}

func (s *RedisStore) get(ctx context.Context, c redis.Cmdable, id string) (*models.FilterSet, error) {
	raw, err := c.Get(ctx, redisSetKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get filter set: %w", err)
	}
	return decodeSet(raw)
}

func (s *RedisStore) GetByTarget(ctx context.Context, targetID uint64) (*models.FilterSet, error) {
	id, err := s.client.HGet(ctx, redisTargetsKey, targetField(targetID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) checkTargets(ctx context.Context, tx *redis.Tx, set *models.FilterSet) error {
	fields := make([]string, len(set.TargetIDs))
	for i, t := range set.TargetIDs {
		fields[i] = targetField(t)
	}
	owners, err := tx.HMGet(ctx, redisTargetsKey, fields...).Result()
	if err != nil {
		return fmt.Errorf("failed to check targets: %w", err)
	}
	for i, owner := range owners {
		if id, ok := owner.(string); ok && id != set.ID {
			return errTargetTaken(set.TargetIDs[i], id)
		}
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, set *models.FilterSet) error {
	if err := prepareCreate(set, s.now()); err != nil {
		return err
	}
	seq, err := s.client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate filter set sequence: %w", err)
	}
	set.Seq = seq
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode filter set: %w", err)
	}
	key := redisSetKey(set.ID)

	return s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return errConflictID(set.ID)
		}
		if err := s.checkTargets(ctx, tx, set); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(set.Seq), Member: set.ID})
			for _, t := range set.TargetIDs {
				pipe.HSet(ctx, redisTargetsKey, targetField(t), set.ID)
			}
			return nil
		})
		return err
	}, key, redisTargetsKey)
}

func (s *RedisStore) Update(ctx context.Context, set *models.FilterSet) error {
	if err := validate(set); err != nil {
		return err
	}
	key := redisSetKey(set.ID)

	return s.watch(ctx, func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, set.ID)
		if err != nil {
			return err
		}
		if err := s.checkTargets(ctx, tx, set); err != nil {
			return err
		}

		set.Version = current.Version + 1
		set.Seq = current.Seq
		set.CreatedAt = current.CreatedAt
		set.UpdatedAt = s.now()
		if set.Filters == nil {
			set.Filters = []string{}
		}
		raw, err := json.Marshal(set)
		if err != nil {
			return fmt.Errorf("failed to encode filter set: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			for _, t := range current.TargetIDs {
				if !set.HasTarget(t) {
					pipe.HDel(ctx, redisTargetsKey, targetField(t))
				}
			}
			for _, t := range set.TargetIDs {
				pipe.HSet(ctx, redisTargetsKey, targetField(t), set.ID)
			}
			return nil
		})
		return err
	}, key, redisTargetsKey)
}

func (s *RedisStore) AddFilter(ctx context.Context, id, filter string) (*models.FilterSet, error) {
	return s.mutate(ctx, id, func(set *models.FilterSet) error {
		appendFilter(set, filter)
		return nil
	})
}

func (s *RedisStore) RemoveFilter(ctx context.Context, id, filter string) (*models.FilterSet, error) {
	return s.mutate(ctx, id, func(set *models.FilterSet) error {
		if !removeFilter(set, filter) {
			return ErrFilterNotFound
		}
		return nil
	})
}

func (s *RedisStore) mutate(ctx context.Context, id string, fn func(*models.FilterSet) error) (*models.FilterSet, error) {
	key := redisSetKey(id)
	var result *models.FilterSet

	err := s.watch(ctx, func(tx *redis.Tx) error {
		set, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}

		before := len(set.Filters)
		if err := fn(set); err != nil {
			return err
		}
		result = set
		if len(set.Filters) == before {
			return nil
		}

		set.Version++
		set.UpdatedAt = s.now()
		raw, err := json.Marshal(set)
		if err != nil {
			return fmt.Errorf("failed to encode filter set: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	key := redisSetKey(id)

	return s.watch(ctx, func(tx *redis.Tx) error {
		set, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, redisIndexKey, id)
			for _, t := range set.TargetIDs {
				pipe.HDel(ctx, redisTargetsKey, targetField(t))
			}
			return nil
		})
		return err
	}, key, redisTargetsKey)
}
