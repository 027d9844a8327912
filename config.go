package dispatch

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	// RegistrarConfig controls how a Registrar accepts registrations
	RegistrarConfig struct {
		Logger      *zap.Logger
		OnCollision CollisionPolicy
	}

	// InvokerConfig names the collaborators an Invoker sequences after a
	// successful dispatch. A nil Store or Pubsub disables that step
	// entirely. When the collaborator is present and its filter is nil,
	// every event is accepted
	InvokerConfig struct {
		Store          EventStore
		CanStore       EventFilter
		Pubsub         Publisher
		CanPublish     EventFilter
		Logger         *zap.Logger
		TracerProvider trace.TracerProvider
	}

	// HubConfig controls how an EventHub delivers published events
	HubConfig struct {
		Logger *zap.Logger

		// Deferred routes events through a topic consumed separately by
		// every subscription instead of calling subscribers on the
		// publishing goroutine
		Deferred bool

		// QueueSize buffers each deferred subscription's filtered events
		QueueSize int

		// DeliverTimeout bounds a single deferred subscriber call
		DeliverTimeout time.Duration
	}

	// CollisionPolicy decides what happens when a name is registered twice
	CollisionPolicy int
)

const (
	// Overwrite replaces the earlier handler; the last write wins
	Overwrite CollisionPolicy = iota

	// Reject fails the later registration with ErrDuplicateHandler
	Reject
)

const (
	DefaultHubQueueSize      = 1024
	DefaultHubDeliverTimeout = 30 * time.Second
)

func DefaultRegistrarConfig() RegistrarConfig {
	return RegistrarConfig{
		Logger:      zap.NewNop(),
		OnCollision: Overwrite,
	}
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		Logger:         zap.NewNop(),
		Deferred:       false,
		QueueSize:      DefaultHubQueueSize,
		DeliverTimeout: DefaultHubDeliverTimeout,
	}
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
