package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DefiantLabs/warden-explorer/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCache struct {
	mu        sync.Mutex
	stored    []int64
	published []int64
}

func (c *recordingCache) SetSnapshot(_ context.Context, s *model.UptimeSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = append(c.stored, s.LastProcessedHeight)
	return nil
}

func (c *recordingCache) GetSnapshot(context.Context) (*model.UptimeSnapshot, error) {
	return nil, nil
}

func (c *recordingCache) PublishSnapshot(_ context.Context, s *model.UptimeSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, s.LastProcessedHeight)
	return nil
}

func (c *recordingCache) lastPublished() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.published) == 0 {
		return 0
	}
	return c.published[len(c.published)-1]
}

func TestOfferKeepsLatest(t *testing.T) {
	c := NewCacheConsumer(&recordingCache{})

	c.Offer(model.UptimeSnapshot{LastProcessedHeight: 1})
	c.Offer(model.UptimeSnapshot{LastProcessedHeight: 2})
	c.Offer(model.UptimeSnapshot{LastProcessedHeight: 3})

	require.Len(t, c.snapshotsCh, 1)
	assert.Equal(t, int64(3), (<-c.snapshotsCh).LastProcessedHeight)
}

func TestRunSnapshots(t *testing.T) {
	cache := &recordingCache{}
	c := NewCacheConsumer(cache)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.RunSnapshots(ctx) }()

	c.Offer(model.UptimeSnapshot{LastProcessedHeight: 42})
	assert.Eventually(t, func() bool { return cache.lastPublished() == 42 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Equal(t, []int64{42}, cache.stored)
}
