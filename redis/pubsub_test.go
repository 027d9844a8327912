package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/kode4food/dispatch"
	"github.com/kode4food/dispatch/redis"
)

type collector struct {
	mu     sync.Mutex
	events []*dispatch.Event
}

func TestPubsubFanOut(t *testing.T) {
	server := miniredis.RunT(t)
	ctx := context.Background()

	cfg := redis.DefaultPubsubConfig()
	cfg.Addr = server.Addr()

	publisher, err := redis.OpenPubsub(ctx, cfg)
	assert.NoError(t, err)
	defer func() { _ = publisher.Close() }()

	listener, err := redis.OpenPubsub(ctx, cfg)
	assert.NoError(t, err)
	defer func() { _ = listener.Close() }()

	named := &collector{}
	all := &collector{}
	listener.SubscribeTo("Created", named.handle)
	listener.SubscribeToAll(all.handle)

	created, err := dispatch.NewEvent("created", map[string]int{"n": 1})
	assert.NoError(t, err)
	deleted, err := dispatch.NewEvent("deleted", map[string]int{"n": 2})
	assert.NoError(t, err)

	assert.NoError(t, publisher.Publish(ctx, created, deleted))

	assert.Eventually(t, func() bool {
		return all.len() == 2 && named.len() == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, created.ID, named.at(0).ID)
	assert.Equal(t, created.ID, all.at(0).ID)
	assert.Equal(t, deleted.ID, all.at(1).ID)
}

func TestPubsubUnsubscribe(t *testing.T) {
	server := miniredis.RunT(t)
	ctx := context.Background()

	cfg := redis.DefaultPubsubConfig()
	cfg.Addr = server.Addr()

	ps, err := redis.OpenPubsub(ctx, cfg)
	assert.NoError(t, err)
	defer func() { _ = ps.Close() }()

	dropped := &collector{}
	kept := &collector{}
	sub := ps.SubscribeToAll(dropped.handle)
	ps.SubscribeToAll(kept.handle)
	sub.Unsubscribe()
	sub.Unsubscribe()

	ev, err := dispatch.NewEvent("created", map[string]int{"n": 1})
	assert.NoError(t, err)
	assert.NoError(t, ps.Publish(ctx, ev))

	assert.Eventually(t, func() bool {
		return kept.len() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, dropped.len())
}

func TestPubsubCloseTwice(t *testing.T) {
	server := miniredis.RunT(t)
	cfg := redis.DefaultPubsubConfig()
	cfg.Addr = server.Addr()

	ps, err := redis.OpenPubsub(context.Background(), cfg)
	assert.NoError(t, err)
	assert.NoError(t, ps.Close())
	assert.NoError(t, ps.Close())
}

func (c *collector) handle(_ context.Context, ev *dispatch.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) at(i int) *dispatch.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[i]
}
