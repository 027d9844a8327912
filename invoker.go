package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	// Invoker sequences a dispatch with the persistence and publication of
	// the events it produces. Events are durably appended before any of
	// them are published, so no subscriber observes an event that was not
	// recorded
	Invoker struct {
		registrar  *Registrar
		store      EventStore
		pubsub     Publisher
		canStore   EventFilter
		canPublish EventFilter
		logger     *zap.Logger
		tracer     trace.Tracer
	}
)

const tracerName = "github.com/kode4food/dispatch"

var (
	// ErrHandlerFailed wraps a failure returned by a handler
	ErrHandlerFailed = errors.New("handler failed")

	// ErrStoreFailed wraps a failure to append events to the EventStore
	ErrStoreFailed = errors.New("event store append failed")

	// ErrPublishFailed wraps a failure to publish events
	ErrPublishFailed = errors.New("event publish failed")
)

// NewInvoker creates an Invoker for the requests registered with reg
func NewInvoker(reg *Registrar, cfg InvokerConfig) *Invoker {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Invoker{
		registrar:  reg,
		store:      cfg.Store,
		pubsub:     cfg.Pubsub,
		canStore:   makeFilter(cfg.Store != nil, cfg.CanStore),
		canPublish: makeFilter(cfg.Pubsub != nil, cfg.CanPublish),
		logger:     loggerOrNop(cfg.Logger),
		tracer:     tp.Tracer(tracerName),
	}
}

// Registrar returns the Registrar the Invoker dispatches through
func (i *Invoker) Registrar() *Registrar {
	return i.registrar
}

// Invoke dispatches req to the handler registered under name. A Result
// carrying errors is returned without side effects. Otherwise its storable
// events are appended to the store, then its publishable events are
// published. Store and publish failures are returned; nothing is rolled
// back or retried. Cancellation of ctx is not propagated: once started, an
// invocation runs to completion
func (i *Invoker) Invoke(
	ctx context.Context, name string, req any,
) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	kind := string(i.registrar.Kind())

	ctx, span := i.tracer.Start(ctx, "dispatch.invoke",
		trace.WithAttributes(
			attribute.String("dispatch.kind", kind),
			attribute.String("dispatch.name", name),
		),
	)
	defer span.End()

	res, err := i.registrar.Dispatch(ctx, name, req)
	if err != nil {
		return nil, i.fail(span, name, fmt.Errorf("%w: %w", ErrHandlerFailed, err))
	}
	if !res.OK() {
		span.SetAttributes(attribute.Int("dispatch.errors", len(res.Errors)))
		i.logger.Debug("Rejected request",
			zap.String("kind", kind),
			zap.String("name", name),
			zap.Strings("errors", res.Errors),
		)
		return res, nil
	}

	storable, publishable := res.partition(i.canStore, i.canPublish)
	span.SetAttributes(
		attribute.Int("dispatch.events", len(res.Events)),
		attribute.Int("dispatch.stored", len(storable)),
		attribute.Int("dispatch.published", len(publishable)),
	)

	if len(storable) > 0 {
		if _, err := i.store.Append(ctx, storable...); err != nil {
			return nil, i.fail(span, name, fmt.Errorf("%w: %w", ErrStoreFailed, err))
		}
	}

	if len(publishable) > 0 {
		if err := i.pubsub.Publish(ctx, publishable...); err != nil {
			return nil, i.fail(span, name, fmt.Errorf("%w: %w", ErrPublishFailed, err))
		}
	}

	i.logger.Info("Invoked request",
		zap.String("kind", kind),
		zap.String("name", name),
		zap.Int("events", len(res.Events)),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (i *Invoker) fail(span trace.Span, name string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	i.logger.Error("Invocation failed",
		zap.String("kind", string(i.registrar.Kind())),
		zap.String("name", name),
		zap.Error(err),
	)
	return err
}

// makeFilter ties a filter's default to whether its collaborator exists:
// without a collaborator nothing passes, with one and no explicit filter
// everything passes
func makeFilter(present bool, filter EventFilter) EventFilter {
	switch {
	case !present:
		return func(*Event) bool { return false }
	case filter == nil:
		return func(*Event) bool { return true }
	default:
		return filter
	}
}
