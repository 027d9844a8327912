package dispatch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type (
	// Recorder accumulates the events raised while handling a single
	// request. It is not safe for concurrent use
	Recorder struct {
		enqueued []*Event
		now      func() time.Time
	}
)

// NewEvent stamps a new Event with a fresh identity and the current time,
// marshaling value as its payload
func NewEvent[T any](typ EventType, value T) (*Event, error) {
	return newEvent(typ, value, time.Now())
}

func newEvent(typ EventType, value any, at time.Time) (*Event, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return &Event{
		Timestamp: at,
		ID:        ID(uuid.NewString()),
		Type:      typ,
		Data:      data,
	}, nil
}

// Decode unmarshals the Event's payload into target
func (e *Event) Decode(target any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, target)
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{
		enqueued: []*Event{},
		now:      time.Now,
	}
}

// Enqueued returns the events raised so far
func (r *Recorder) Enqueued() []*Event {
	return r.enqueued
}

// Result returns a successful Result carrying the raised events
func (r *Recorder) Result() *Result {
	return FromEvents(r.enqueued)
}

func (r *Recorder) raise(typ EventType, value any) (*Event, error) {
	ev, err := newEvent(typ, value, r.now())
	if err != nil {
		return nil, err
	}
	r.enqueued = append(r.enqueued, ev)
	return ev, nil
}

// Raise marshals the value and enqueues a new event on the Recorder
func Raise[V any](r *Recorder, typ EventType, value V) error {
	_, err := r.raise(typ, value)
	return err
}
