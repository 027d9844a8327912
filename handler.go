package dispatch

import (
	"context"
	"strings"
)

// MakeEventHandler builds an EventHandler that decodes the event payload into
// T before calling fn
func MakeEventHandler[T any](
	fn func(context.Context, *Event, T) error,
) EventHandler {
	return func(ctx context.Context, ev *Event) error {
		var data T
		if err := ev.Decode(&data); err != nil {
			return err
		}
		return fn(ctx, ev, data)
	}
}

// MakeEventRouter builds an EventHandler that routes each event to the
// handler registered for its name, matched case-insensitively. Events
// without a handler are ignored
func MakeEventRouter(handlers map[EventType]EventHandler) EventHandler {
	folded := make(map[EventType]EventHandler, len(handlers))
	for name, fn := range handlers {
		folded[EventType(strings.ToLower(string(name)))] = fn
	}
	return func(ctx context.Context, ev *Event) error {
		name := EventType(strings.ToLower(string(ev.Type)))
		if fn, ok := folded[name]; ok {
			return fn(ctx, ev)
		}
		return nil
	}
}
