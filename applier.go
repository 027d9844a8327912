package dispatch

import "encoding/json"

type (
	// Applier folds a single event into a projected state
	Applier[S any] func(S, *Event) S

	// Appliers maps event types to the Applier that handles them
	Appliers[S any] map[EventType]Applier[S]

	// Reducer folds an event into a projected state, whatever its type
	Reducer[S any] func(S, *Event) S
)

// MakeApplier builds an Applier that decodes the event payload into Data
// before calling fn. Events whose payload cannot be decoded leave the state
// untouched
func MakeApplier[S, Data any](fn func(S, *Event, Data) S) Applier[S] {
	return func(state S, ev *Event) S {
		var data Data
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return state
		}
		return fn(state, ev, data)
	}
}

// MakeReducer builds a Reducer that routes each event to the Applier
// registered for its type. Events without an Applier are skipped
func MakeReducer[S any](apps Appliers[S]) Reducer[S] {
	return func(state S, ev *Event) S {
		if apply, ok := apps[ev.Type]; ok {
			return apply(state, ev)
		}
		return state
	}
}

// Reduce folds evs left to right into a state, starting from the zero value
func Reduce[S any](reduce Reducer[S], evs []*Event) S {
	var state S
	for _, ev := range evs {
		state = reduce(state, ev)
	}
	return state
}
