package dispatch

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/topic"
	"go.uber.org/zap"
)

type (
	// EventHub is an in-process Pubsub. Subscribers registered for a name
	// receive events of that name (case-insensitively); wildcard
	// subscribers receive every event, ahead of the named ones. Delivery
	// is synchronous on the publishing goroutine unless the hub is
	// configured as Deferred, in which case published events flow through
	// a topic and every subscription consumes its own ordered view of it
	EventHub struct {
		inner    topic.Topic[*delivery]
		producer topic.Producer[*delivery]
		registry *registry
		logger   *zap.Logger
		ctx      context.Context
		cancel   context.CancelFunc
		config   HubConfig
		workers  sync.WaitGroup
		sendMu   sync.Mutex
		seq      uint64
		closed   bool
	}

	// registry tracks active subscriptions
	registry struct {
		byName map[string][]*subscription
		all    []*subscription
		mu     sync.RWMutex
	}

	subscription struct {
		hub      *EventHub
		handler  EventHandler
		consumer *consumer
		name     string
		once     sync.Once
	}
)

const wildcard = "*"

var _ Pubsub = (*EventHub)(nil)

// NewEventHub creates an EventHub
func NewEventHub(cfg HubConfig) *EventHub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultHubQueueSize
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = DefaultHubDeliverTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &EventHub{
		registry: &registry{
			byName: map[string][]*subscription{},
		},
		logger: loggerOrNop(cfg.Logger),
		ctx:    ctx,
		cancel: cancel,
		config: cfg,
	}
	if cfg.Deferred {
		h.inner = caravan.NewTopic[*delivery]()
		h.producer = h.inner.NewProducer()
	}
	return h
}

// Publish delivers evs to the matching subscribers, in order. With deferred
// delivery it returns once every event has been handed to the topic
func (h *EventHub) Publish(ctx context.Context, evs ...*Event) error {
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		subs := h.registry.matching(ev.Type)
		if len(subs) == 0 {
			continue
		}
		if h.config.Deferred {
			if err := h.send(ctx, ev); err != nil {
				return err
			}
			continue
		}
		for _, sub := range subs {
			h.deliver(ctx, sub, ev)
		}
	}
	return nil
}

// SubscribeTo registers handler for events with the given name
func (h *EventHub) SubscribeTo(
	name EventType, handler EventHandler,
) Subscription {
	return h.subscribe(strings.ToLower(string(name)), handler)
}

// SubscribeToAll registers handler for every event
func (h *EventHub) SubscribeToAll(handler EventHandler) Subscription {
	return h.subscribe(wildcard, handler)
}

// HasSubscribers reports whether any subscription would receive an event
// with the given name
func (h *EventHub) HasSubscribers(name EventType) bool {
	return len(h.registry.matching(name)) > 0
}

// Close removes every subscription and, with deferred delivery, waits for
// in-flight deliveries to finish. It must not be called from a deferred
// subscriber
func (h *EventHub) Close() error {
	h.sendMu.Lock()
	wasClosed := h.closed
	h.closed = true
	if !wasClosed && h.producer != nil {
		h.producer.Close()
	}
	h.sendMu.Unlock()

	for _, sub := range h.registry.snapshot() {
		sub.Unsubscribe()
	}
	h.workers.Wait()
	h.cancel()
	return nil
}

func (h *EventHub) subscribe(name string, handler EventHandler) Subscription {
	sub := &subscription{
		hub:     h,
		handler: handler,
		name:    name,
	}
	if h.config.Deferred {
		h.sendMu.Lock()
		if h.closed {
			h.sendMu.Unlock()
			return sub
		}
		sub.consumer = newConsumer(sub, h.inner.NewConsumer(), h.seq)
		h.sendMu.Unlock()
	}
	h.registry.register(sub)
	return sub
}

// send hands ev to the topic under the next sequence number, so consumers
// created later can skip what was published before they existed
func (h *EventHub) send(ctx context.Context, ev *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	if h.closed {
		return nil
	}

	h.seq++
	select {
	case h.producer.Send() <- &delivery{event: ev, seq: h.seq}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *EventHub) deliver(ctx context.Context, sub *subscription, ev *Event) {
	if err := safeHandle(ctx, sub.handler, ev); err != nil {
		h.logger.Error("Subscriber failed to handle event",
			zap.String("subscription", sub.name),
			zap.String("event_id", string(ev.ID)),
			zap.String("event_name", string(ev.Type)),
			zap.Error(err),
		)
	}
}

// Unsubscribe removes the subscription. Later calls do nothing. It never
// waits for a deferred delivery, so a subscriber may unsubscribe itself
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.registry.unregister(s)
		if s.consumer != nil {
			s.consumer.close()
		}
	})
}

func (s *subscription) matches(ev *Event) bool {
	return s.name == wildcard || s.name == strings.ToLower(string(ev.Type))
}

// register adds a subscription to the registry
func (r *registry) register(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.name == wildcard {
		r.all = append(slices.Clip(r.all), sub)
		return
	}
	r.byName[sub.name] = append(slices.Clip(r.byName[sub.name]), sub)
}

// unregister removes exactly the provided subscription
func (r *registry) unregister(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	remove := func(subs []*subscription) []*subscription {
		return slices.DeleteFunc(slices.Clone(subs), func(s *subscription) bool {
			return s == sub
		})
	}

	if sub.name == wildcard {
		r.all = remove(r.all)
		return
	}
	subs := remove(r.byName[sub.name])
	if len(subs) == 0 {
		delete(r.byName, sub.name)
		return
	}
	r.byName[sub.name] = subs
}

// matching returns the subscriptions an event with the given name reaches,
// wildcard subscriptions first
func (r *registry) matching(name EventType) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	named := r.byName[strings.ToLower(string(name))]
	res := make([]*subscription, 0, len(r.all)+len(named))
	res = append(res, r.all...)
	return append(res, named...)
}

func (r *registry) snapshot() []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := slices.Clone(r.all)
	for _, subs := range r.byName {
		res = append(res, subs...)
	}
	return res
}

func safeHandle(ctx context.Context, handler EventHandler, ev *Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("subscriber panicked: %v", rec)
		}
	}()
	return handler(ctx, ev)
}
