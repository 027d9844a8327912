package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/kode4food/dispatch"
	"github.com/kode4food/dispatch/internal/storetest"
	"github.com/kode4food/dispatch/redis"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) dispatch.EventStore {
		server := miniredis.RunT(t)
		cfg := redis.DefaultConfig()
		cfg.Addr = server.Addr()

		store, err := redis.Open(context.Background(), cfg)
		if !assert.NoError(t, err) {
			t.FailNow()
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestStorePrefixes(t *testing.T) {
	server := miniredis.RunT(t)
	ctx := context.Background()

	cfg := redis.DefaultConfig()
	cfg.Addr = server.Addr()
	cfg.Prefix = "left"
	left, err := redis.Open(ctx, cfg)
	assert.NoError(t, err)
	defer func() { _ = left.Close() }()

	cfg.Prefix = "right"
	right, err := redis.Open(ctx, cfg)
	assert.NoError(t, err)
	defer func() { _ = right.Close() }()

	ev, err := dispatch.NewEvent("created", map[string]int{"n": 1})
	assert.NoError(t, err)
	_, err = left.Append(ctx, ev)
	assert.NoError(t, err)
	_, err = right.Append(ctx, ev)
	assert.NoError(t, err)

	assert.True(t, server.Exists("left:events"))
	assert.True(t, server.Exists("right:event_ids"))
}

func TestStoreNameIndex(t *testing.T) {
	server := miniredis.RunT(t)
	ctx := context.Background()
	cfg := redis.DefaultConfig()
	cfg.Addr = server.Addr()

	store, err := redis.Open(ctx, cfg)
	assert.NoError(t, err)
	defer func() { _ = store.Close() }()

	for _, color := range []string{"red", "blue", "red"} {
		created, err := dispatch.NewEvent("created", map[string]string{
			"color": color,
		})
		assert.NoError(t, err)
		renamed, err := dispatch.NewEvent("renamed", map[string]string{
			"color": color,
		})
		assert.NoError(t, err)
		_, err = store.Append(ctx, created, renamed)
		assert.NoError(t, err)
	}

	indexes, err := server.List("dispatch:events:name:created")
	assert.NoError(t, err)
	assert.Equal(t, []string{"0", "2", "4"}, indexes)

	byName := dispatch.NewQueryBuilder().
		SetProperty(dispatch.PropertyName, dispatch.EventType("created"))

	res, err := store.Query(ctx, byName.Build())
	assert.NoError(t, err)
	assert.Len(t, res, 3)
	for _, ev := range res {
		assert.Equal(t, dispatch.EventType("created"), ev.Type)
	}

	res, err = store.Query(ctx,
		byName.SetProperty("color", "red").SetSkip(dispatch.Int(1)).Build(),
	)
	assert.NoError(t, err)
	if assert.Len(t, res, 1) {
		var data map[string]string
		assert.NoError(t, res[0].Decode(&data))
		assert.Equal(t, "red", data["color"])
	}

	res, err = store.Query(ctx, dispatch.NewQueryBuilder().
		SetProperty(dispatch.PropertyName, "Created").
		Build(),
	)
	assert.NoError(t, err)
	assert.Empty(t, res)
}

func TestStoreGetByIDMissing(t *testing.T) {
	server := miniredis.RunT(t)
	cfg := redis.DefaultConfig()
	cfg.Addr = server.Addr()

	store, err := redis.Open(context.Background(), cfg)
	assert.NoError(t, err)
	defer func() { _ = store.Close() }()

	res, err := store.Query(context.Background(),
		dispatch.NewQueryBuilder().
			SetProperty(dispatch.PropertyID, "missing").
			Build(),
	)
	assert.NoError(t, err)
	assert.Empty(t, res)
}

func TestOpenUnreachable(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	cfg := redis.DefaultConfig()
	cfg.Addr = addr
	_, err := redis.Open(context.Background(), cfg)
	assert.Error(t, err)
}
