package deduplication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"killrelay/internal/config"
	"killrelay/internal/logger"
)

type memoryRepository struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{keys: make(map[string]time.Duration)}
}

func (r *memoryRepository) SetNX(_ context.Context, key string, _ interface{}, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if _, ok := r.keys[key]; ok {
		return false, nil
	}
	r.keys[key] = ttl
	return true, nil
}

func (r *memoryRepository) Del(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	delete(r.keys, key)
	return nil
}

func TestService_Key(t *testing.T) {
	s := NewService(newMemoryRepository(), config.DeduplicationConfig{KeyPrefix: "kill:"}, logger.NopLogger())
	assert.Equal(t, "kill:42:123456", s.Key(42, 123456))

	s = NewService(newMemoryRepository(), config.DeduplicationConfig{}, nil)
	assert.Equal(t, "kill:42:1", s.Key(42, 1))
}

func TestService_Claim(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	s := NewService(repo, config.DeduplicationConfig{TTLSeconds: 60, KeyPrefix: "kill:"}, logger.NopLogger())

	first, err := s.Claim(ctx, 42, 1)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.Claim(ctx, 42, 1)
	require.NoError(t, err)
	assert.False(t, again)

	otherTarget, err := s.Claim(ctx, 43, 1)
	require.NoError(t, err)
	assert.True(t, otherTarget)

	assert.Equal(t, time.Minute, repo.keys["kill:42:1"])
}

func TestService_DefaultTTL(t *testing.T) {
	repo := newMemoryRepository()
	s := NewService(repo, config.DeduplicationConfig{KeyPrefix: "kill:"}, logger.NopLogger())

	_, err := s.Claim(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, repo.keys["kill:1:2"])
}

func TestService_Release(t *testing.T) {
	ctx := context.Background()
	s := NewService(newMemoryRepository(), config.DeduplicationConfig{}, logger.NopLogger())

	ok, err := s.Claim(ctx, 42, 1)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Release(ctx, 42, 1))

	ok, err = s.Claim(ctx, 42, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_RedisErrorFallback(t *testing.T) {
	ctx := context.Background()
	failure := errors.New("connection refused")

	t.Run("allow", func(t *testing.T) {
		repo := newMemoryRepository()
		repo.err = failure
		s := NewService(repo, config.DeduplicationConfig{OnRedisError: "allow"}, logger.NopLogger())

		ok, err := s.Claim(ctx, 1, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("deny", func(t *testing.T) {
		repo := newMemoryRepository()
		repo.err = failure
		s := NewService(repo, config.DeduplicationConfig{OnRedisError: "deny"}, logger.NopLogger())

		ok, err := s.Claim(ctx, 1, 1)
		assert.False(t, ok)
		assert.ErrorIs(t, err, failure)
	})
}

func TestService_Claim_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewService(newMemoryRepository(), config.DeduplicationConfig{}, logger.NopLogger())
	_, err := s.Claim(ctx, 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerRepository_Disabled(t *testing.T) {
	repo := NewCircuitBreakerRepository(newMemoryRepository(), config.CircuitBreakerConfig{})
	assert.Equal(t, "disabled", repo.State())
	assert.False(t, repo.IsOpen())

	ok, err := repo.SetNX(context.Background(), "k", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, repo.Del(context.Background(), "k"))
}

func TestCircuitBreakerRepository_Opens(t *testing.T) {
	inner := newMemoryRepository()
	inner.err = errors.New("timeout")
	repo := NewCircuitBreakerRepository(inner, config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})

	for i := 0; i < 2; i++ {
		_, err := repo.SetNX(context.Background(), "k", 1, time.Second)
		require.Error(t, err)
	}
	assert.True(t, repo.IsOpen())
	assert.Equal(t, "open", repo.State())

	_, err := repo.SetNX(context.Background(), "k", 1, time.Second)
	assert.ErrorContains(t, err, "circuit breaker is open")
}
