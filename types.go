package dispatch

import (
	"context"
	"encoding/json"
	"time"
)

type (
	// ID uniquely identifies an Event
	ID string

	// EventType is the tag naming what kind of fact an Event records
	EventType string

	// Event is an immutable fact with identity, tag, and timestamp. Payload
	// fields are carried as a JSON object in Data
	Event struct {
		Timestamp time.Time       `json:"when"`
		ID        ID              `json:"id"`
		Type      EventType       `json:"name"`
		Data      json.RawMessage `json:"data"`
	}

	// Result is produced by every dispatch. A non-empty Errors means Events
	// must be disregarded downstream
	Result struct {
		Errors []string `json:"errors"`
		Events []*Event `json:"events"`
	}

	// Handler processes a decoded request and produces a Result. A returned
	// error is an infrastructure failure, not a validation failure
	Handler[Req any] func(context.Context, Req) (*Result, error)

	// Guard is a single ad-hoc validation distinct from the rule chain
	Guard[Req any] func(context.Context, Req) []string

	// EventHandler receives published events
	EventHandler func(context.Context, *Event) error

	// EventFilter decides whether an event should reach a collaborator
	EventFilter func(*Event) bool

	// Kind names the family of requests a Registrar handles
	Kind string
)

const (
	KindCommand Kind = "command"
	KindQuery   Kind = "query"
	KindEvent   Kind = "event"
)
