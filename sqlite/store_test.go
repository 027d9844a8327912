package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/dispatch"
	"github.com/kode4food/dispatch/internal/storetest"
	"github.com/kode4food/dispatch/sqlite"
)

func TestStore(t *testing.T) {
	storetest.Run(t, openStore)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := sqlite.Open("  ")
	assert.ErrorIs(t, err, sqlite.ErrPathRequired)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	store, err := sqlite.Open(path)
	assert.NoError(t, err)
	ev, err := dispatch.NewEvent("opened", map[string]any{"n": 1})
	assert.NoError(t, err)
	_, err = store.Append(ctx, ev)
	assert.NoError(t, err)
	assert.NoError(t, store.Close())

	store, err = sqlite.Open(path)
	assert.NoError(t, err)
	defer func() { _ = store.Close() }()

	res, err := store.Query(ctx, dispatch.NewQueryBuilder().Build())
	assert.NoError(t, err)
	if assert.Len(t, res, 1) {
		assert.Equal(t, ev.ID, res[0].ID)
	}
}

func TestResidualProperties(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)

	evs := []*dispatch.Event{
		{
			Timestamp: at,
			ID:        "a",
			Type:      "tagged",
			Data:      json.RawMessage(`{"tags":["x","y"],"on":true}`),
		},
		{
			Timestamp: at.Add(time.Second),
			ID:        "b",
			Type:      "tagged",
			Data:      json.RawMessage(`{"tags":["z"],"on":false}`),
		},
		{
			Timestamp: at,
			ID:        "c",
			Type:      "tagged",
			Data:      json.RawMessage(`{"tags":["x","y"],"on":true}`),
		},
	}
	_, err := store.Append(ctx, evs...)
	assert.NoError(t, err)

	res, err := store.Query(ctx,
		dispatch.NewQueryBuilder().
			SetProperty("tags", []string{"x", "y"}).
			SetTake(dispatch.Int(1)).
			SetSkip(dispatch.Int(1)).
			Build(),
	)
	assert.NoError(t, err)
	if assert.Len(t, res, 1) {
		assert.Equal(t, dispatch.ID("c"), res[0].ID)
	}

	res, err = store.Query(ctx,
		dispatch.NewQueryBuilder().SetProperty("on", false).Build(),
	)
	assert.NoError(t, err)
	if assert.Len(t, res, 1) {
		assert.Equal(t, dispatch.ID("b"), res[0].ID)
	}

	res, err = store.Query(ctx,
		dispatch.NewQueryBuilder().SetProperty(dispatch.PropertyWhen, at).Build(),
	)
	assert.NoError(t, err)
	assert.Len(t, res, 2)
}

func openStore(t *testing.T) dispatch.EventStore {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "events.db"))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
