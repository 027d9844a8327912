package dispatch

import (
	"context"
	"errors"
	"fmt"
)

type (
	// EventStore is an append-only event log
	EventStore interface {
		// Append persists evs as one batch, preserving their identity,
		// name, and timestamp. A batch containing an already stored ID is
		// rejected as a whole with a DuplicateEventError
		Append(ctx context.Context, evs ...*Event) ([]*Event, error)

		// Query returns the stored events matching every property of q in
		// insertion order, honoring q's Skip and Take
		Query(ctx context.Context, q EventQuery) ([]*Event, error)
	}

	// DuplicateEventError reports an append that collided with an event
	// already in the store
	DuplicateEventError struct {
		ID ID
	}
)

var (
	// ErrDuplicateEvent is matched by every DuplicateEventError
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrEventIDRequired indicates an event without an ID was appended
	ErrEventIDRequired = errors.New("event id is required")
)

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("duplicate event: id %q is already stored", e.ID)
}

// Is allows errors.Is(err, ErrDuplicateEvent)
func (e *DuplicateEventError) Is(target error) bool {
	return target == ErrDuplicateEvent
}

// CheckBatch verifies that every event in evs carries an ID and that no ID
// repeats within the batch
func CheckBatch(evs []*Event) error {
	seen := make(map[ID]struct{}, len(evs))
	for _, ev := range evs {
		if ev.ID == "" {
			return ErrEventIDRequired
		}
		if _, ok := seen[ev.ID]; ok {
			return &DuplicateEventError{ID: ev.ID}
		}
		seen[ev.ID] = struct{}{}
	}
	return nil
}
