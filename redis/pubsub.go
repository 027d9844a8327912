package redis

import (
	"context"
	"encoding/json"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kode4food/dispatch"
)

type (
	// Pubsub publishes events on a Redis channel and fans the events it
	// receives back out to local subscribers through an EventHub. Every
	// process sharing the channel observes every published event, in the
	// order Redis delivers them
	Pubsub struct {
		client     *goredis.Client
		sub        *goredis.PubSub
		hub        *dispatch.EventHub
		logger     *zap.Logger
		cancel     context.CancelFunc
		channel    string
		wg         sync.WaitGroup
		closeOnce  sync.Once
		ownsClient bool
	}
)

const channelSuffix = ":events:published"

var _ dispatch.Pubsub = (*Pubsub)(nil)

// OpenPubsub connects to the configured Redis server and returns a Pubsub
// using it. The Pubsub closes the connection when it is closed
func OpenPubsub(ctx context.Context, cfg PubsubConfig) (*Pubsub, error) {
	client, err := connect(ctx, cfg.Config)
	if err != nil {
		return nil, err
	}
	ps, err := NewPubsub(ctx, client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	ps.ownsClient = true
	return ps, nil
}

// NewPubsub subscribes to the configured channel using an existing client
// and starts relaying received events to local subscribers
func NewPubsub(
	ctx context.Context, client *goredis.Client, cfg PubsubConfig,
) (*Pubsub, error) {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hubCfg := cfg.Hub
	if hubCfg.Logger == nil {
		hubCfg.Logger = logger
	}

	channel := prefix + channelSuffix
	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	ps := &Pubsub{
		client:  client,
		sub:     sub,
		hub:     dispatch.NewEventHub(hubCfg),
		logger:  logger,
		cancel:  cancel,
		channel: channel,
	}

	ps.wg.Add(1)
	go ps.relay(relayCtx)
	return ps, nil
}

// Publish sends evs to the channel in order, as a single pipeline
func (p *Pubsub) Publish(ctx context.Context, evs ...*dispatch.Event) error {
	payloads := make([]string, 0, len(evs))
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		payloads = append(payloads, string(data))
	}
	if len(payloads) == 0 {
		return nil
	}

	_, err := p.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, data := range payloads {
			pipe.Publish(ctx, p.channel, data)
		}
		return nil
	})
	return err
}

// SubscribeTo registers handler for events with the given name
func (p *Pubsub) SubscribeTo(
	name dispatch.EventType, handler dispatch.EventHandler,
) dispatch.Subscription {
	return p.hub.SubscribeTo(name, handler)
}

// SubscribeToAll registers handler for every event
func (p *Pubsub) SubscribeToAll(
	handler dispatch.EventHandler,
) dispatch.Subscription {
	return p.hub.SubscribeToAll(handler)
}

// Close stops relaying, removes every subscription, and releases the
// connection if the Pubsub opened it
func (p *Pubsub) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		err = p.sub.Close()
		p.wg.Wait()
		_ = p.hub.Close()
		if p.ownsClient {
			if cerr := p.client.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

func (p *Pubsub) relay(ctx context.Context) {
	defer p.wg.Done()

	ch := p.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev, err := unmarshalEvent(msg.Payload)
			if err != nil {
				p.logger.Error("Unable to decode published event",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			if err := p.hub.Publish(ctx, ev); err != nil {
				p.logger.Error("Unable to relay published event",
					zap.String("event_id", string(ev.ID)),
					zap.Error(err),
				)
			}
		}
	}
}
