// Package storetest exercises an EventStore implementation against the
// behavior every back end shares
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/dispatch"
)

type (
	// Factory returns an empty store for a single test
	Factory func(t *testing.T) dispatch.EventStore

	thing struct {
		Color string `json:"color"`
		Count int    `json:"count"`
	}
)

const (
	eventCreated dispatch.EventType = "thingCreated"
	eventRenamed dispatch.EventType = "thingRenamed"
)

// Run executes the shared EventStore tests against stores built by factory
func Run(t *testing.T, factory Factory) {
	t.Run("AppendAndQuery", func(t *testing.T) {
		testAppendAndQuery(t, factory(t))
	})
	t.Run("PreservesEnvelope", func(t *testing.T) {
		testPreservesEnvelope(t, factory(t))
	})
	t.Run("DuplicateRejected", func(t *testing.T) {
		testDuplicateRejected(t, factory(t))
	})
	t.Run("DuplicateInBatch", func(t *testing.T) {
		testDuplicateInBatch(t, factory(t))
	})
	t.Run("Properties", func(t *testing.T) {
		testProperties(t, factory(t))
	})
	t.Run("SkipTake", func(t *testing.T) {
		testSkipTake(t, factory(t))
	})
	t.Run("EmptyAppend", func(t *testing.T) {
		testEmptyAppend(t, factory(t))
	})
}

func testAppendAndQuery(t *testing.T, store dispatch.EventStore) {
	ctx := context.Background()
	evs := makeEvents(t, 3)

	stored, err := store.Append(ctx, evs...)
	assert.NoError(t, err)
	assert.Len(t, stored, 3)

	res, err := store.Query(ctx, dispatch.NewQueryBuilder().Build())
	assert.NoError(t, err)
	if assert.Len(t, res, 3) {
		for i, ev := range res {
			assert.Equal(t, evs[i].ID, ev.ID)
		}
	}
}

func testPreservesEnvelope(t *testing.T, store dispatch.EventStore) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	ev := &dispatch.Event{
		Timestamp: at,
		ID:        "envelope-1",
		Type:      eventCreated,
		Data:      json.RawMessage(`{"color":"red","count":2}`),
	}

	_, err := store.Append(ctx, ev)
	assert.NoError(t, err)

	res, err := store.Query(ctx,
		dispatch.NewQueryBuilder().
			SetProperty(dispatch.PropertyID, "envelope-1").
			Build(),
	)
	assert.NoError(t, err)
	if !assert.Len(t, res, 1) {
		return
	}
	got := res[0]
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Type, got.Type)
	assert.True(t, at.Equal(got.Timestamp))

	var data thing
	assert.NoError(t, got.Decode(&data))
	assert.Equal(t, thing{Color: "red", Count: 2}, data)
}

func testDuplicateRejected(t *testing.T, store dispatch.EventStore) {
	ctx := context.Background()
	evs := makeEvents(t, 2)

	_, err := store.Append(ctx, evs[0])
	assert.NoError(t, err)

	_, err = store.Append(ctx, evs[1], evs[0])
	assert.ErrorIs(t, err, dispatch.ErrDuplicateEvent)

	res, err := store.Query(ctx, dispatch.NewQueryBuilder().Build())
	assert.NoError(t, err)
	assert.Len(t, res, 1)
}

func testDuplicateInBatch(t *testing.T, store dispatch.EventStore) {
	ctx := context.Background()
	ev := makeEvents(t, 1)[0]

	_, err := store.Append(ctx, ev, ev)
	assert.ErrorIs(t, err, dispatch.ErrDuplicateEvent)

	res, err := store.Query(ctx, dispatch.NewQueryBuilder().Build())
	assert.NoError(t, err)
	assert.Empty(t, res)
}

func testProperties(t *testing.T, store dispatch.EventStore) {
	ctx := context.Background()
	red, err := dispatch.NewEvent(eventCreated, thing{Color: "red", Count: 1})
	assert.NoError(t, err)
	blue, err := dispatch.NewEvent(eventCreated, thing{Color: "blue", Count: 2})
	assert.NoError(t, err)
	renamed, err := dispatch.NewEvent(eventRenamed, thing{Color: "red", Count: 3})
	assert.NoError(t, err)

	_, err = store.Append(ctx, red, blue, renamed)
	assert.NoError(t, err)

	byName, err := store.Query(ctx,
		dispatch.NewQueryBuilder().
			SetProperty(dispatch.PropertyName, eventCreated).
			Build(),
	)
	assert.NoError(t, err)
	assert.Equal(t, ids(red, blue), ids(byName...))

	byColor, err := store.Query(ctx,
		dispatch.NewQueryBuilder().SetProperty("color", "red").Build(),
	)
	assert.NoError(t, err)
	assert.Equal(t, ids(red, renamed), ids(byColor...))

	both, err := store.Query(ctx,
		dispatch.NewQueryBuilder().
			SetProperty(dispatch.PropertyName, eventCreated).
			SetProperty("count", 2).
			Build(),
	)
	assert.NoError(t, err)
	assert.Equal(t, ids(blue), ids(both...))

	none, err := store.Query(ctx,
		dispatch.NewQueryBuilder().SetProperty("color", "green").Build(),
	)
	assert.NoError(t, err)
	assert.Empty(t, none)

	missing, err := store.Query(ctx,
		dispatch.NewQueryBuilder().SetProperty("shape", "round").Build(),
	)
	assert.NoError(t, err)
	assert.Empty(t, missing)
}

func testSkipTake(t *testing.T, store dispatch.EventStore) {
	ctx := context.Background()
	evs := makeEvents(t, 5)
	_, err := store.Append(ctx, evs...)
	assert.NoError(t, err)

	res, err := store.Query(ctx,
		dispatch.NewQueryBuilder().
			SetSkip(dispatch.Int(1)).
			SetTake(dispatch.Int(2)).
			Build(),
	)
	assert.NoError(t, err)
	assert.Equal(t, ids(evs[1], evs[2]), ids(res...))

	res, err = store.Query(ctx,
		dispatch.NewQueryBuilder().SetSkip(dispatch.Int(4)).Build(),
	)
	assert.NoError(t, err)
	assert.Equal(t, ids(evs[4]), ids(res...))

	res, err = store.Query(ctx,
		dispatch.NewQueryBuilder().SetSkip(dispatch.Int(10)).Build(),
	)
	assert.NoError(t, err)
	assert.Empty(t, res)

	res, err = store.Query(ctx,
		dispatch.NewQueryBuilder().SetTake(dispatch.Int(0)).Build(),
	)
	assert.NoError(t, err)
	assert.Empty(t, res)
}

func testEmptyAppend(t *testing.T, store dispatch.EventStore) {
	ctx := context.Background()
	res, err := store.Append(ctx)
	assert.NoError(t, err)
	assert.Empty(t, res)
}

func makeEvents(t *testing.T, n int) []*dispatch.Event {
	t.Helper()
	res := make([]*dispatch.Event, 0, n)
	for i := range n {
		ev, err := dispatch.NewEvent(eventCreated, thing{Color: "red", Count: i})
		assert.NoError(t, err)
		res = append(res, ev)
	}
	return res
}

func ids(evs ...*dispatch.Event) []dispatch.ID {
	res := make([]dispatch.ID, 0, len(evs))
	for _, ev := range evs {
		res = append(res, ev.ID)
	}
	return res
}
