package dispatch

import "context"

type (
	// Publisher fans events out to subscribers. Publish returns once the
	// events are enqueued for delivery
	Publisher interface {
		Publish(ctx context.Context, evs ...*Event) error
	}

	// Pubsub is a Publisher that also manages subscriptions. Delivery
	// preserves publication order for each subscriber, and event names
	// are matched case-insensitively
	Pubsub interface {
		Publisher
		SubscribeTo(name EventType, handler EventHandler) Subscription
		SubscribeToAll(handler EventHandler) Subscription
	}

	// Subscription removes exactly the handler it was created for.
	// Unsubscribe may be called any number of times
	Subscription interface {
		Unsubscribe()
	}
)
