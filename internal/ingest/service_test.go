package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"killrelay/internal/config"
	"killrelay/internal/logger"
	"killrelay/pkg/models"
	"killrelay/pkg/retry"
)

type fakeFeed struct {
	mu        sync.Mutex
	packages  []*Package
	pollErrs  []error
	killmails map[string]*models.Killmail
	fetchErr  error
	fetches   int
}

func (f *fakeFeed) Poll(context.Context) (*Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pollErrs) > 0 {
		err := f.pollErrs[0]
		f.pollErrs = f.pollErrs[1:]
		return nil, err
	}
	if len(f.packages) == 0 {
		return nil, nil
	}
	pkg := f.packages[0]
	f.packages = f.packages[1:]
	return pkg, nil
}

func (f *fakeFeed) FetchKillmail(_ context.Context, href string) (*models.Killmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	km, ok := f.killmails[href]
	if !ok {
		return nil, retry.NewFatalError(errors.New("unknown href"))
	}
	copied := *km
	return &copied, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	messages []models.MessageEnvelope
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, msg models.MessageEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

var killTime = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestService(feed Feed, pub Publisher) *Service {
	s := NewService(feed, pub, "killmails", config.IngestConfig{}, logger.NopLogger())
	s.policy = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
	s.now = func() time.Time { return killTime.Add(90 * time.Second) }
	return s
}

func decodeKillmail(t *testing.T, env models.MessageEnvelope) models.Killmail {
	t.Helper()
	var km models.Killmail
	require.NoError(t, env.DecodePayload(&km))
	return km
}

func TestService_Process_Inline(t *testing.T) {
	raw, err := json.Marshal(models.Killmail{KillID: 7, Time: killTime, SystemID: 30000142})
	require.NoError(t, err)

	pub := &fakePublisher{}
	s := newTestService(&fakeFeed{}, pub)

	require.NoError(t, s.Process(context.Background(), &Package{KillID: 7, Killmail: raw, Zkb: Zkb{Hash: "h"}}))
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "killmails", pub.topics[0])

	env := pub.messages[0]
	assert.Equal(t, SourceName, env.Source)
	assert.Equal(t, uint64(7), env.Metadata.KillID)
	assert.NotEmpty(t, env.ID)

	km := decodeKillmail(t, env)
	assert.Equal(t, "h", km.Hash)
	assert.Equal(t, "https://zkillboard.com/kill/7/", km.URL)
}

func TestService_Process_FetchesDetail(t *testing.T) {
	feed := &fakeFeed{killmails: map[string]*models.Killmail{
		"https://esi.example/7/": {Time: killTime, SystemID: 30002187},
	}}
	pub := &fakePublisher{}
	s := newTestService(feed, pub)

	require.NoError(t, s.Process(context.Background(), &Package{KillID: 7, Zkb: Zkb{Href: "https://esi.example/7/"}}))
	require.Len(t, pub.messages, 1)

	km := decodeKillmail(t, pub.messages[0])
	assert.Equal(t, uint64(7), km.KillID)
	assert.Equal(t, uint64(30002187), km.SystemID)
}

func TestService_Process_RetriesFetch(t *testing.T) {
	feed := &fakeFeed{fetchErr: errors.New("bad gateway")}
	s := newTestService(feed, &fakePublisher{})

	err := s.Process(context.Background(), &Package{KillID: 7, Zkb: Zkb{Href: "https://esi.example/7/"}})
	require.Error(t, err)
	assert.Equal(t, 3, feed.fetches)
}

func TestService_Process_DropsInvalid(t *testing.T) {
	raw, err := json.Marshal(models.Killmail{KillID: 7, Time: killTime})
	require.NoError(t, err)

	pub := &fakePublisher{}
	s := newTestService(&fakeFeed{}, pub)

	require.NoError(t, s.Process(context.Background(), &Package{KillID: 7, Killmail: raw}))
	assert.Empty(t, pub.messages)
}

func TestService_Process_PublishError(t *testing.T) {
	raw, err := json.Marshal(models.Killmail{KillID: 7, Time: killTime, SystemID: 30000142})
	require.NoError(t, err)

	failure := errors.New("broker down")
	s := newTestService(&fakeFeed{}, &fakePublisher{err: failure})

	assert.ErrorIs(t, s.Process(context.Background(), &Package{KillID: 7, Killmail: raw}), failure)
}

func TestService_Run(t *testing.T) {
	raw, err := json.Marshal(models.Killmail{KillID: 9, Time: killTime, SystemID: 30000142})
	require.NoError(t, err)

	feed := &fakeFeed{
		pollErrs: []error{errors.New("timeout")},
		packages: []*Package{nil, {KillID: 9, Killmail: raw}},
	}
	pub := &fakePublisher{}
	s := newTestService(feed, pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
