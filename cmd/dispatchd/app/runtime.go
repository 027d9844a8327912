package app

import (
	"context"
	"fmt"

	"github.com/kode4food/dispatch"
	"github.com/kode4food/dispatch/bolt"
	"github.com/kode4food/dispatch/internal/config"
	"github.com/kode4food/dispatch/internal/demo"
	"github.com/kode4food/dispatch/postgres"
	"github.com/kode4food/dispatch/redis"
	"github.com/kode4food/dispatch/sqlite"
)

type (
	// Runtime is the wired set of registrars, back ends, and invokers a
	// command operates on
	Runtime struct {
		Registrars *demo.Registrars
		Store      dispatch.EventStore
		Pubsub     dispatch.Pubsub
		Commands   *dispatch.Invoker
		Queries    *dispatch.Invoker
		Events     *dispatch.Invoker
	}
)

// Runtime opens the configured back ends and registers the sample domain.
// Everything it opens is released by Close
func (a *App) Runtime(ctx context.Context) (*Runtime, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	ps, err := a.openPubsub(ctx)
	if err != nil {
		return nil, err
	}

	regCfg := dispatch.RegistrarConfig{
		Logger:      a.logger,
		OnCollision: dispatch.Overwrite,
	}
	if a.config.Registry.RejectCollisions {
		regCfg.OnCollision = dispatch.Reject
	}
	regs := demo.NewRegistrars(regCfg)
	if err := demo.Register(regs, store, a.logger); err != nil {
		return nil, err
	}

	return &Runtime{
		Registrars: regs,
		Store:      store,
		Pubsub:     ps,
		Commands: dispatch.NewInvoker(regs.Commands, dispatch.InvokerConfig{
			Store:  store,
			Pubsub: ps,
			Logger: a.logger,
		}),
		Queries: dispatch.NewInvoker(regs.Queries, dispatch.InvokerConfig{
			Logger: a.logger,
		}),
		Events: dispatch.NewInvoker(regs.Events, dispatch.InvokerConfig{
			Logger: a.logger,
		}),
	}, nil
}

func (a *App) openStore(ctx context.Context) (dispatch.EventStore, error) {
	cfg := a.config.Store
	switch cfg.Kind {
	case config.StoreMemory:
		return dispatch.NewMemoryStore(), nil
	case config.StoreRedis:
		s, err := redis.Open(ctx, a.redisConfig())
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		return s, nil
	case config.StoreBolt:
		s, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		return s, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		return s, nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, postgres.Config{
			URL:   cfg.URL,
			Table: cfg.Table,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStore, cfg.Kind)
	}
}

func (a *App) openPubsub(ctx context.Context) (dispatch.Pubsub, error) {
	cfg := a.config.Pubsub
	hubCfg := dispatch.HubConfig{
		Logger:         a.logger,
		Deferred:       cfg.Deferred,
		QueueSize:      cfg.QueueSize,
		DeliverTimeout: cfg.DeliverTimeout,
	}

	switch cfg.Kind {
	case config.PubsubLocal:
		hub := dispatch.NewEventHub(hubCfg)
		a.onClose(hub.Close)
		return hub, nil
	case config.PubsubRedis:
		ps, err := redis.OpenPubsub(ctx, redis.PubsubConfig{
			Config: a.redisConfig(),
			Hub:    hubCfg,
			Logger: a.logger,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(ps.Close)
		return ps, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownPubsub, cfg.Kind)
	}
}

func (a *App) redisConfig() redis.Config {
	cfg := a.config.Redis
	return redis.Config{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		Prefix:   cfg.Prefix,
		DB:       cfg.DB,
	}
}
