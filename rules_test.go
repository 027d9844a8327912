package dispatch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/dispatch"
)

type named struct {
	Name string `json:"name"`
}

func TestRuleChain(t *testing.T) {
	ctx := context.Background()

	t.Run("empty chain yields no errors", func(t *testing.T) {
		errs := dispatch.NewRuleChain[named]().Validate(ctx, named{})
		assert.NotNil(t, errs)
		assert.Empty(t, errs)
	})

	t.Run("concatenates in order", func(t *testing.T) {
		chain := dispatch.NewRuleChain[named]().
			AddRule(func(context.Context, named) []string {
				return []string{"a", "b"}
			}).
			AddTest("c", func(context.Context, named) bool { return false }).
			AddTest("skipped", func(context.Context, named) bool { return true }).
			AddRule(func(context.Context, named) []string {
				return []string{"d"}
			})

		assert.Equal(t, 4, chain.Len())
		assert.Equal(t, []string{"a", "b", "c", "d"}, chain.Validate(ctx, named{}))
	})

	t.Run("does not short-circuit", func(t *testing.T) {
		calls := 0
		count := func(context.Context, named) []string {
			calls++
			return []string{"fail"}
		}
		chain := dispatch.NewRuleChain[named]().AddRule(count).AddRule(count)
		assert.Len(t, chain.Validate(ctx, named{}), 2)
		assert.Equal(t, 2, calls)
	})

	t.Run("adding leaves the receiver untouched", func(t *testing.T) {
		base := dispatch.NewRuleChain[named]().
			AddTest("base", func(context.Context, named) bool { return false })

		left := base.AddTest("left",
			func(context.Context, named) bool { return false },
		)
		right := base.AddTest("right",
			func(context.Context, named) bool { return false },
		)

		assert.Equal(t, []string{"base"}, base.Validate(ctx, named{}))
		assert.Equal(t, []string{"base", "left"}, left.Validate(ctx, named{}))
		assert.Equal(t, []string{"base", "right"}, right.Validate(ctx, named{}))
	})

	t.Run("rules see the request", func(t *testing.T) {
		chain := dispatch.NewRuleChain[named]().AddTest("name is required",
			func(_ context.Context, req named) bool { return req.Name != "" },
		)
		assert.Empty(t, chain.Validate(ctx, named{Name: "x"}))
		assert.Equal(t,
			[]string{"name is required"}, chain.Validate(ctx, named{}),
		)
	})
}

func TestStatefulRuleChain(t *testing.T) {
	ctx := context.Background()
	taken := func(_ context.Context, state map[string]bool, req named) bool {
		return !state[req.Name]
	}

	t.Run("validates against state", func(t *testing.T) {
		chain := dispatch.NewStatefulRuleChain[map[string]bool, named]().
			AddTest("name is taken", taken)

		state := map[string]bool{"alice": true}
		assert.Equal(t,
			[]string{"name is taken"},
			chain.Validate(ctx, state, named{Name: "alice"}),
		)
		assert.Empty(t, chain.Validate(ctx, state, named{Name: "bob"}))
	})

	t.Run("tolerates the zero state", func(t *testing.T) {
		chain := dispatch.NewStatefulRuleChain[map[string]bool, named]().
			AddTest("name is taken", taken)
		assert.Empty(t, chain.Validate(ctx, nil, named{Name: "alice"}))
	})

	t.Run("adding leaves the receiver untouched", func(t *testing.T) {
		base := dispatch.NewStatefulRuleChain[int, named]()
		next := base.AddRule(func(context.Context, int, named) []string {
			return []string{"x"}
		})
		assert.Equal(t, 0, base.Len())
		assert.Equal(t, 1, next.Len())
		assert.Empty(t, base.Validate(ctx, 0, named{}))
		assert.Equal(t, []string{"x"}, next.Validate(ctx, 0, named{}))
	})
}
