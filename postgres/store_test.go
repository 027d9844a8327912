package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/kode4food/dispatch"
	"github.com/kode4food/dispatch/internal/storetest"
	"github.com/kode4food/dispatch/postgres"
)

const urlEnv = "DISPATCH_POSTGRES_URL"

func TestBuildWhere(t *testing.T) {
	q := dispatch.NewQueryBuilder().
		SetProperty(dispatch.PropertyName, dispatch.EventType("created")).
		SetProperty("color", "red").
		SetProperty(dispatch.PropertyID, "abc").
		Build()

	where, args, ok := postgres.BuildWhere(q)
	assert.True(t, ok)
	assert.Equal(t,
		" WHERE data -> $1::text = $2::jsonb AND id = $3 AND name = $4",
		where,
	)
	assert.Equal(t, []any{"color", `"red"`, "abc", "created"}, args)
}

func TestBuildWhereEmpty(t *testing.T) {
	where, args, ok := postgres.BuildWhere(dispatch.NewQueryBuilder().Build())
	assert.True(t, ok)
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestBuildWhereWhen(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	q := dispatch.NewQueryBuilder().
		SetProperty(dispatch.PropertyWhen, at.Format(time.RFC3339Nano)).
		Build()

	where, args, ok := postgres.BuildWhere(q)
	assert.True(t, ok)
	assert.Equal(t, " WHERE at = $1", where)
	if assert.Len(t, args, 1) {
		assert.True(t, at.Equal(args[0].(time.Time)))
	}
}

func TestBuildWhereUnmatchable(t *testing.T) {
	_, _, ok := postgres.BuildWhere(
		dispatch.NewQueryBuilder().SetProperty(dispatch.PropertyID, 42).Build(),
	)
	assert.False(t, ok)

	_, _, ok = postgres.BuildWhere(
		dispatch.NewQueryBuilder().
			SetProperty(dispatch.PropertyWhen, "yesterday").
			Build(),
	)
	assert.False(t, ok)
}

func TestBuildWindow(t *testing.T) {
	assert.Equal(t, " ORDER BY seq",
		postgres.BuildWindow(dispatch.NewQueryBuilder().Build()),
	)
	assert.Equal(t, " ORDER BY seq LIMIT 2 OFFSET 1",
		postgres.BuildWindow(
			dispatch.NewQueryBuilder().
				SetSkip(dispatch.Int(1)).
				SetTake(dispatch.Int(2)).
				Build(),
		),
	)
}

func TestInvalidTable(t *testing.T) {
	_, err := postgres.New(nil, "events; DROP TABLE users")
	assert.ErrorIs(t, err, postgres.ErrInvalidTable)
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := postgres.Open(context.Background(), postgres.DefaultConfig())
	assert.ErrorIs(t, err, postgres.ErrURLRequired)
}

func TestStore(t *testing.T) {
	url := os.Getenv(urlEnv)
	if url == "" {
		t.Skipf("%s not set", urlEnv)
	}

	storetest.Run(t, func(t *testing.T) dispatch.EventStore {
		table := fmt.Sprintf("events_%s", uuid.NewString()[:8])
		store, err := postgres.Open(context.Background(), postgres.Config{
			URL:   url,
			Table: table,
		})
		if !assert.NoError(t, err) {
			t.FailNow()
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
