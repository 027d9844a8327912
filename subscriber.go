package dispatch

import (
	"context"

	"go.uber.org/zap"
)

// ErrorsHandler receives the errors produced while reacting to an event
type ErrorsHandler func(ev *Event, errs []string)

// SubscribeEvents reacts to every event published on ps by invoking the
// event handler registered under the event's name. Events without a
// registered handler are ignored. Validation errors and infrastructure
// failures are both reported to onErrors; when onErrors is nil they are
// logged instead
func SubscribeEvents(
	ps Pubsub, inv *Invoker, onErrors ErrorsHandler,
) Subscription {
	report := onErrors
	if report == nil {
		report = func(ev *Event, errs []string) {
			inv.logger.Error("Event handling failed",
				zap.String("event_id", string(ev.ID)),
				zap.String("event_name", string(ev.Type)),
				zap.Strings("errors", errs),
			)
		}
	}

	return ps.SubscribeToAll(func(ctx context.Context, ev *Event) error {
		name := string(ev.Type)
		if !inv.Registrar().Has(name) {
			return nil
		}
		res, err := inv.Invoke(ctx, name, ev)
		if err != nil {
			report(ev, []string{err.Error()})
			return nil
		}
		if !res.OK() {
			report(ev, res.Errors)
		}
		return nil
	})
}
