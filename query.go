package dispatch

import (
	"encoding/json"
	"maps"
	"reflect"
	"time"
)

type (
	// EventQuery selects stored events whose properties all equal the
	// expected values, honoring Skip and Take when they are set
	EventQuery struct {
		Skip       *int           `json:"skip,omitempty"`
		Take       *int           `json:"take,omitempty"`
		Properties map[string]any `json:"properties"`
	}

	// QueryBuilder constructs an EventQuery fluently. Every method returns
	// a new builder and leaves the receiver untouched
	QueryBuilder struct {
		skip  *int
		take  *int
		props map[string]any
	}
)

// Envelope property names. Every other property addresses a top-level
// field of the event payload
const (
	PropertyID   = "id"
	PropertyName = "name"
	PropertyWhen = "when"
)

// NewQueryBuilder returns a builder for an unfiltered, unpaginated query
func NewQueryBuilder() QueryBuilder {
	return QueryBuilder{}
}

// SetSkip sets the number of matching events to skip, unless skip is nil
func (b QueryBuilder) SetSkip(skip *int) QueryBuilder {
	if skip == nil {
		return b
	}
	return b.ForceSkip(skip)
}

// ForceSkip sets the number of matching events to skip. A nil skip unsets it
func (b QueryBuilder) ForceSkip(skip *int) QueryBuilder {
	b.skip = copyInt(skip)
	return b
}

// SetTake sets the maximum number of events to return, unless take is nil
func (b QueryBuilder) SetTake(take *int) QueryBuilder {
	if take == nil {
		return b
	}
	return b.ForceTake(take)
}

// ForceTake sets the maximum number of events to return. A nil take unsets
// it
func (b QueryBuilder) ForceTake(take *int) QueryBuilder {
	b.take = copyInt(take)
	return b
}

// SetProperty requires key to equal value, unless value is undefined (nil
// or a nil pointer)
func (b QueryBuilder) SetProperty(key string, value any) QueryBuilder {
	if isUndefined(value) {
		return b
	}
	return b.ForceProperty(key, value)
}

// ForceProperty requires key to equal value. An undefined value removes the
// requirement
func (b QueryBuilder) ForceProperty(key string, value any) QueryBuilder {
	props := maps.Clone(b.props)
	if props == nil {
		props = map[string]any{}
	}
	if isUndefined(value) {
		delete(props, key)
	} else {
		props[key] = value
	}
	b.props = props
	return b
}

// Build returns the EventQuery described by the builder. The returned query
// does not share state with the builder
func (b QueryBuilder) Build() EventQuery {
	props := maps.Clone(b.props)
	if props == nil {
		props = map[string]any{}
	}
	return EventQuery{
		Skip:       copyInt(b.skip),
		Take:       copyInt(b.take),
		Properties: props,
	}
}

// Matches reports whether ev satisfies every property of the query
func (q EventQuery) Matches(ev *Event) bool {
	if len(q.Properties) == 0 {
		return true
	}

	var payload map[string]any
	for key, want := range q.Properties {
		switch key {
		case PropertyID:
			if !equalString(string(ev.ID), want) {
				return false
			}
		case PropertyName:
			if !equalString(string(ev.Type), want) {
				return false
			}
		case PropertyWhen:
			if !equalTime(ev.Timestamp, want) {
				return false
			}
		default:
			if payload == nil {
				payload = map[string]any{}
				if err := json.Unmarshal(ev.Data, &payload); err != nil {
					return false
				}
			}
			got, ok := payload[key]
			if !ok || !equalJSON(got, want) {
				return false
			}
		}
	}
	return true
}

// Window returns the [start, end) bounds that Skip and Take select from n
// matching events
func (q EventQuery) Window(n int) (int, int) {
	start := 0
	if q.Skip != nil && *q.Skip > 0 {
		start = min(*q.Skip, n)
	}
	end := n
	if q.Take != nil && *q.Take >= 0 {
		end = min(start+*q.Take, n)
	}
	return start, end
}

// Payload returns the properties that address payload fields, leaving out
// the envelope properties
func (q EventQuery) Payload() map[string]any {
	res := map[string]any{}
	for key, value := range q.Properties {
		switch key {
		case PropertyID, PropertyName, PropertyWhen:
		default:
			res[key] = value
		}
	}
	return res
}

// Int returns a pointer to n, for use with SetSkip and SetTake
func Int(n int) *int {
	return &n
}

func copyInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

func isUndefined(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func equalString(got string, want any) bool {
	switch w := want.(type) {
	case string:
		return got == w
	case ID:
		return got == string(w)
	case EventType:
		return got == string(w)
	default:
		return equalJSON(got, want)
	}
}

func equalTime(got time.Time, want any) bool {
	switch w := want.(type) {
	case time.Time:
		return got.Equal(w)
	case *time.Time:
		return w != nil && got.Equal(*w)
	case string:
		t, err := time.Parse(time.RFC3339Nano, w)
		return err == nil && got.Equal(t)
	default:
		return false
	}
}

// equalJSON compares values the way they would compare once both were
// encoded and decoded as JSON
func equalJSON(got, want any) bool {
	g, err := normalizeJSON(got)
	if err != nil {
		return false
	}
	w, err := normalizeJSON(want)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(g, w)
}

func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var res any
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return res, nil
}
