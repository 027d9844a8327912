package dispatch

import (
	"context"
	"slices"
)

type (
	// StatefulRule checks a request against a projected state value. The
	// state may be the zero value when it could not be derived, so rules
	// must tolerate it rather than assume it is present
	StatefulRule[S, Req any] func(context.Context, S, Req) []string

	// StatefulRuleTest reports whether a request passes a single check
	// against a projected state
	StatefulRuleTest[S, Req any] func(context.Context, S, Req) bool

	// StatefulRuleChain is the immutable, ordered counterpart of RuleChain
	// for StatefulRules
	StatefulRuleChain[S, Req any] struct {
		rules []StatefulRule[S, Req]
	}
)

// MakeStatefulRule builds a StatefulRule that yields message whenever test
// fails
func MakeStatefulRule[S, Req any](
	message string, test StatefulRuleTest[S, Req],
) StatefulRule[S, Req] {
	return func(ctx context.Context, state S, req Req) []string {
		if test(ctx, state, req) {
			return nil
		}
		return []string{message}
	}
}

// NewStatefulRuleChain returns an empty StatefulRuleChain
func NewStatefulRuleChain[S, Req any]() StatefulRuleChain[S, Req] {
	return StatefulRuleChain[S, Req]{}
}

// AddRule returns a new chain with rule appended
func (c StatefulRuleChain[S, Req]) AddRule(
	rule StatefulRule[S, Req],
) StatefulRuleChain[S, Req] {
	return StatefulRuleChain[S, Req]{
		rules: append(slices.Clip(c.rules), rule),
	}
}

// AddTest returns a new chain with a rule that yields message when test fails
func (c StatefulRuleChain[S, Req]) AddTest(
	message string, test StatefulRuleTest[S, Req],
) StatefulRuleChain[S, Req] {
	return c.AddRule(MakeStatefulRule(message, test))
}

// Len returns the number of rules in the chain
func (c StatefulRuleChain[_, _]) Len() int {
	return len(c.rules)
}

// Validate runs every rule against state and req, concatenating their
// messages in the order the rules were added
func (c StatefulRuleChain[S, Req]) Validate(
	ctx context.Context, state S, req Req,
) []string {
	errs := []string{}
	for _, rule := range c.rules {
		errs = append(errs, rule(ctx, state, req)...)
	}
	return errs
}
