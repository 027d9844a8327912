package dispatch

// FromEvent returns a successful Result carrying a single event
func FromEvent(ev *Event) *Result {
	return FromEvents([]*Event{ev})
}

// FromEvents returns a successful Result carrying the provided events
func FromEvents(evs []*Event) *Result {
	if evs == nil {
		evs = []*Event{}
	}
	return &Result{
		Errors: []string{},
		Events: evs,
	}
}

// FromError returns a failed Result carrying a single error message
func FromError(msg string) *Result {
	return FromErrors([]string{msg})
}

// FromErrors returns a failed Result carrying the provided error messages
func FromErrors(msgs []string) *Result {
	if msgs == nil {
		msgs = []string{}
	}
	return &Result{
		Errors: msgs,
		Events: []*Event{},
	}
}

// OK reports whether the Result carries no errors
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}

// partition splits the Result's events into those accepted by each filter.
// An event may land in both, either, or neither subset
func (r *Result) partition(canStore, canPublish EventFilter) (
	storable, publishable []*Event,
) {
	for _, ev := range r.Events {
		if canStore(ev) {
			storable = append(storable, ev)
		}
		if canPublish(ev) {
			publishable = append(publishable, ev)
		}
	}
	return storable, publishable
}
