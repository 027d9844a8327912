package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kode4food/caravan/topic"
	"go.uber.org/zap"
)

type (
	// consumer carries a deferred subscription's events from the hub's
	// topic to its handler. One goroutine filters the topic down to the
	// subscription's interests and a second calls the handler, so the
	// subscriber sees matching events in the order they were published
	consumer struct {
		sub      *subscription
		inner    topic.Consumer[*delivery]
		filtered chan *Event
		done     chan struct{}
		from     uint64
		closed   atomic.Bool
	}

	// delivery is what travels through the hub's topic
	delivery struct {
		event *Event
		seq   uint64
	}
)

func newConsumer(
	sub *subscription, inner topic.Consumer[*delivery], from uint64,
) *consumer {
	c := &consumer{
		sub:      sub,
		inner:    inner,
		filtered: make(chan *Event, sub.hub.config.QueueSize),
		done:     make(chan struct{}),
		from:     from,
	}

	sub.hub.workers.Add(2)
	go c.filter()
	go c.run()
	return c
}

// filter forwards the topic's events that the subscription is interested
// in. Once the consumer is closed it keeps draining the topic without
// forwarding, so closing never waits on the handler
func (c *consumer) filter() {
	defer c.sub.hub.workers.Done()
	defer close(c.filtered)

	for d := range c.inner.Receive() {
		if d.seq <= c.from || !c.sub.matches(d.event) {
			continue
		}
		select {
		case c.filtered <- d.event:
		case <-c.done:
		}
	}
}

func (c *consumer) run() {
	defer c.sub.hub.workers.Done()

	for ev := range c.filtered {
		if c.closed.Load() {
			continue
		}
		c.deliver(ev)
	}
}

func (c *consumer) deliver(ev *Event) {
	hub := c.sub.hub
	ctx, cancel := context.WithTimeout(hub.ctx, hub.config.DeliverTimeout)
	defer cancel()

	start := time.Now()
	err := safeHandle(ctx, c.sub.handler, ev)
	duration := time.Since(start)

	if err != nil {
		hub.logger.Error("Subscriber failed to handle event",
			zap.String("subscription", c.sub.name),
			zap.String("event_id", string(ev.ID)),
			zap.String("event_name", string(ev.Type)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	hub.logger.Debug("Event delivered",
		zap.String("subscription", c.sub.name),
		zap.String("event_id", string(ev.ID)),
		zap.Duration("duration", duration),
	)
}

// close stops delivery without waiting for an in-flight handler
func (c *consumer) close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)
	c.inner.Close()
}
