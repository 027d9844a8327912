package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/dispatch"
)

type history struct {
	Names []string
}

func TestStateKey(t *testing.T) {
	key, err := dispatch.StateKey("Rename", "history")
	assert.NoError(t, err)
	assert.Equal(t, "rename:history", key)

	_, err = dispatch.StateKey("rename", "")
	assert.ErrorIs(t, err, dispatch.ErrStateTypeRequired)

	_, err = dispatch.StateKey("rename", "a:b")
	assert.ErrorIs(t, err, dispatch.ErrReservedSeparator)

	_, err = dispatch.StateKey("", "history")
	assert.ErrorIs(t, err, dispatch.ErrNameRequired)
}

func TestAddState(t *testing.T) {
	ctx := context.Background()

	t.Run("validates against derived state", func(t *testing.T) {
		reg := newCommands()
		r, err := dispatch.Register(reg, "greet", greetHandler)
		assert.NoError(t, err)

		scope, err := dispatch.AddState(r, "seen",
			func(context.Context, greet) (map[string]bool, error) {
				return map[string]bool{"alice": true}, nil
			},
		)
		assert.NoError(t, err)
		assert.Same(t, r, scope.Registration())
		scope.WithTest("already greeted",
			func(_ context.Context, seen map[string]bool, req greet) bool {
				return !seen[req.Name]
			},
		)

		res, err := reg.Dispatch(ctx, "greet", greet{Name: "alice"})
		assert.NoError(t, err)
		assert.Equal(t, []string{"already greeted"}, res.Errors)

		res, err = reg.Dispatch(ctx, "greet", greet{Name: "bob"})
		assert.NoError(t, err)
		assert.True(t, res.OK())
	})

	t.Run("failures yield the zero state", func(t *testing.T) {
		sources := map[string]dispatch.StateFunc[greet, *history]{
			"error": func(context.Context, greet) (*history, error) {
				return &history{}, errors.New("unavailable")
			},
			"panic": func(context.Context, greet) (*history, error) {
				panic("unavailable")
			},
		}

		for label, source := range sources {
			reg := newCommands()
			r, err := dispatch.Register(reg, "greet", greetHandler)
			assert.NoError(t, err)

			var seen *history
			observed := false
			scope, err := dispatch.AddState(r, "history", source)
			assert.NoError(t, err)
			scope.WithRule(
				func(_ context.Context, h *history, _ greet) []string {
					seen, observed = h, true
					return nil
				},
			)

			res, err := reg.Dispatch(ctx, "greet", greet{Name: "x"})
			assert.NoError(t, err, label)
			assert.True(t, res.OK(), label)
			assert.True(t, observed, label)
			assert.Nil(t, seen, label)
		}
	})

	t.Run("re-adding replaces the source", func(t *testing.T) {
		reg := newCommands()
		r, err := dispatch.Register(reg, "greet", greetHandler)
		assert.NoError(t, err)

		scope, err := dispatch.AddState(r, "limit",
			func(context.Context, greet) (int, error) { return 0, nil },
		)
		assert.NoError(t, err)
		scope.WithTest("over limit",
			func(_ context.Context, limit int, req greet) bool {
				return len(req.Name) <= limit
			},
		)

		res, err := reg.Dispatch(ctx, "greet", greet{Name: "abc"})
		assert.NoError(t, err)
		assert.Equal(t, []string{"over limit"}, res.Errors)

		_, err = dispatch.AddState(r, "limit",
			func(context.Context, greet) (int, error) { return 5, nil },
		)
		assert.NoError(t, err)

		res, err = reg.Dispatch(ctx, "greet", greet{Name: "abc"})
		assert.NoError(t, err)
		assert.True(t, res.OK())
	})

	t.Run("state tests run in registration order", func(t *testing.T) {
		reg := newCommands()
		r, err := dispatch.Register(reg, "greet", greetHandler)
		assert.NoError(t, err)

		for _, name := range []string{"first", "second"} {
			scope, err := dispatch.AddState(r, name,
				func(context.Context, greet) (string, error) { return name, nil },
			)
			assert.NoError(t, err)
			scope.WithRule(func(_ context.Context, s string, _ greet) []string {
				return []string{s}
			})
		}

		res, err := reg.Dispatch(ctx, "greet", greet{})
		assert.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, res.Errors)
	})

	t.Run("rejects bad arguments", func(t *testing.T) {
		reg := newCommands()
		r, err := dispatch.Register(reg, "greet", greetHandler)
		assert.NoError(t, err)

		_, err = dispatch.AddState[greet, int](r, "x", nil)
		assert.ErrorIs(t, err, dispatch.ErrStateSourceRequired)

		_, err = dispatch.AddState(r, "",
			func(context.Context, greet) (int, error) { return 0, nil },
		)
		assert.ErrorIs(t, err, dispatch.ErrStateTypeRequired)

		_, err = dispatch.AddReducedState[greet, int](r, "x", nil, nil)
		assert.ErrorIs(t, err, dispatch.ErrStateSourceRequired)
	})
}

func TestAddReducedState(t *testing.T) {
	ctx := context.Background()
	reduce := dispatch.MakeReducer(dispatch.Appliers[*history]{
		greeted: dispatch.MakeApplier(
			func(h *history, _ *dispatch.Event, req greet) *history {
				res := &history{}
				if h != nil {
					res.Names = append(res.Names, h.Names...)
				}
				res.Names = append(res.Names, req.Name)
				return res
			},
		),
	})

	t.Run("folds events in order", func(t *testing.T) {
		store := dispatch.NewMemoryStore()
		for _, name := range []string{"a", "b", "c"} {
			ev, err := dispatch.NewEvent(greeted, greet{Name: name})
			assert.NoError(t, err)
			_, err = store.Append(ctx, ev)
			assert.NoError(t, err)
		}

		reg := newCommands()
		r, err := dispatch.Register(reg, "greet", greetHandler)
		assert.NoError(t, err)

		var seen *history
		scope, err := dispatch.AddReducedState(r, "history", reduce,
			dispatch.QueryEvents(store, func(greet) dispatch.EventQuery {
				return dispatch.NewQueryBuilder().
					SetProperty(dispatch.PropertyName, greeted).
					Build()
			}),
		)
		assert.NoError(t, err)
		scope.WithRule(func(_ context.Context, h *history, _ greet) []string {
			seen = h
			return nil
		})

		_, err = reg.Dispatch(ctx, "greet", greet{Name: "d"})
		assert.NoError(t, err)
		if assert.NotNil(t, seen) {
			assert.Equal(t, []string{"a", "b", "c"}, seen.Names)
		}
	})

	t.Run("fetch failures yield the zero state", func(t *testing.T) {
		reg := newCommands()
		r, err := dispatch.Register(reg, "greet", greetHandler)
		assert.NoError(t, err)

		observed := false
		scope, err := dispatch.AddReducedState(r, "history", reduce,
			func(context.Context, greet) ([]*dispatch.Event, error) {
				return []*dispatch.Event{
					{Type: greeted, Data: json.RawMessage(`{"name":"x"}`)},
				}, errors.New("store offline")
			},
		)
		assert.NoError(t, err)
		scope.WithTest("history required",
			func(_ context.Context, h *history, _ greet) bool {
				observed = true
				return h != nil
			},
		)

		res, err := reg.Dispatch(ctx, "greet", greet{Name: "d"})
		assert.NoError(t, err)
		assert.True(t, observed)
		assert.Equal(t, []string{"history required"}, res.Errors)
	})
}
