package dispatch

import (
	"context"
	"slices"
)

type (
	// Rule is a pure check against a request, yielding zero or more error
	// messages. An empty result means the rule is satisfied
	Rule[Req any] func(context.Context, Req) []string

	// RuleTest reports whether a request passes a single check
	RuleTest[Req any] func(context.Context, Req) bool

	// RuleChain is an immutable, ordered sequence of Rules. Adding a rule
	// returns a new chain and never alters the receiver, so holders of an
	// earlier chain keep a stable view
	RuleChain[Req any] struct {
		rules []Rule[Req]
	}
)

// MakeRule builds a Rule that yields message whenever test fails
func MakeRule[Req any](message string, test RuleTest[Req]) Rule[Req] {
	return func(ctx context.Context, req Req) []string {
		if test(ctx, req) {
			return nil
		}
		return []string{message}
	}
}

// NewRuleChain returns an empty RuleChain
func NewRuleChain[Req any]() RuleChain[Req] {
	return RuleChain[Req]{}
}

// AddRule returns a new chain with rule appended
func (c RuleChain[Req]) AddRule(rule Rule[Req]) RuleChain[Req] {
	return RuleChain[Req]{
		rules: append(slices.Clip(c.rules), rule),
	}
}

// AddTest returns a new chain with a rule that yields message when test fails
func (c RuleChain[Req]) AddTest(
	message string, test RuleTest[Req],
) RuleChain[Req] {
	return c.AddRule(MakeRule(message, test))
}

// Len returns the number of rules in the chain
func (c RuleChain[_]) Len() int {
	return len(c.rules)
}

// Validate runs every rule against req and concatenates their messages in
// the order the rules were added
func (c RuleChain[Req]) Validate(ctx context.Context, req Req) []string {
	errs := []string{}
	for _, rule := range c.rules {
		errs = append(errs, rule(ctx, req)...)
	}
	return errs
}
