package bolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/dispatch"
	"github.com/kode4food/dispatch/bolt"
	"github.com/kode4food/dispatch/internal/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) dispatch.EventStore {
		store, err := bolt.Open(filepath.Join(t.TempDir(), "events.db"))
		if !assert.NoError(t, err) {
			t.FailNow()
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := bolt.Open("")
	assert.ErrorIs(t, err, bolt.ErrPathRequired)
}

func TestCloseNil(t *testing.T) {
	var store *bolt.Store
	assert.NoError(t, store.Close())
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	store, err := bolt.Open(path)
	assert.NoError(t, err)
	first, err := dispatch.NewEvent("opened", map[string]int{"n": 1})
	assert.NoError(t, err)
	_, err = store.Append(ctx, first)
	assert.NoError(t, err)
	assert.NoError(t, store.Close())

	store, err = bolt.Open(path)
	assert.NoError(t, err)
	defer func() { _ = store.Close() }()

	second, err := dispatch.NewEvent("opened", map[string]int{"n": 2})
	assert.NoError(t, err)
	_, err = store.Append(ctx, second)
	assert.NoError(t, err)

	_, err = store.Append(ctx, first)
	assert.ErrorIs(t, err, dispatch.ErrDuplicateEvent)

	res, err := store.Query(ctx, dispatch.NewQueryBuilder().Build())
	assert.NoError(t, err)
	if assert.Len(t, res, 2) {
		assert.Equal(t, first.ID, res[0].ID)
		assert.Equal(t, second.ID, res[1].ID)
	}
}

func TestCanceledContext(t *testing.T) {
	store, err := bolt.Open(filepath.Join(t.TempDir(), "events.db"))
	assert.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Query(ctx, dispatch.NewQueryBuilder().Build())
	assert.ErrorIs(t, err, context.Canceled)
}
