package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type (
	// StateFunc derives the state a stateful rule chain validates against.
	// Any error makes the state the zero value for that dispatch
	StateFunc[Req, S any] func(context.Context, Req) (S, error)

	// EventsFunc fetches the past events relevant to a request
	EventsFunc[Req any] func(context.Context, Req) ([]*Event, error)

	// StateScope accretes stateful rules onto a single state test of a
	// Registration
	StateScope[Req, S any] struct {
		reg   *Registration[Req]
		bound *boundState[Req, S]
	}

	stateTest[Req any] interface {
		key() string
		validate(context.Context, Req) []string
	}

	boundState[Req, S any] struct {
		getState  StateFunc[Req, S]
		logger    *zap.Logger
		rules     StatefulRuleChain[S, Req]
		stateKey  string
		stateType string
	}
)

var (
	// ErrStateTypeRequired indicates a blank state type
	ErrStateTypeRequired = errors.New("state type must be a non-empty string")

	// ErrStateSourceRequired indicates a nil state or event source
	ErrStateSourceRequired = errors.New("state source must be a function")

	// ErrStateSourcePanic indicates a state source panicked while deriving
	// state. The state is treated as the zero value
	ErrStateSourcePanic = errors.New("state source panicked")
)

// StateKey joins a request name and a state type into the key a state test
// is registered under
func StateKey(name, stateType string) (string, error) {
	key, err := foldName(name)
	if err != nil {
		return "", err
	}
	if stateType == "" {
		return "", ErrStateTypeRequired
	}
	if strings.Contains(stateType, StateKeySeparator) {
		return "", ErrReservedSeparator
	}
	return key + StateKeySeparator + stateType, nil
}

// AddState registers a state test under stateType. During dispatch,
// getState derives the state and the scope's stateful rule chain validates
// the request against it. Adding the same state type again replaces its
// source in place and keeps its rules
func AddState[Req, S any](
	reg *Registration[Req], stateType string, getState StateFunc[Req, S],
) (*StateScope[Req, S], error) {
	if getState == nil {
		return nil, ErrStateSourceRequired
	}
	key, err := StateKey(reg.key, stateType)
	if err != nil {
		return nil, err
	}
	if !reg.live() {
		return nil, reg.err
	}

	bound := &boundState[Req, S]{
		getState:  getState,
		logger:    reg.registrar.logger,
		rules:     NewStatefulRuleChain[S, Req](),
		stateKey:  key,
		stateType: stateType,
	}

	states := reg.bound.states
	for i, st := range states {
		if st.key() != key {
			continue
		}
		if ex, ok := st.(*boundState[Req, S]); ok {
			ex.getState = getState
			return &StateScope[Req, S]{reg: reg, bound: ex}, nil
		}
		states[i] = bound
		return &StateScope[Req, S]{reg: reg, bound: bound}, nil
	}

	reg.bound.states = append(states, bound)
	return &StateScope[Req, S]{reg: reg, bound: bound}, nil
}

// AddReducedState registers a state test whose state is projected by
// folding reduce, left to right from the zero value, over the events that
// getEvents returns. A failure to fetch events projects from no events
func AddReducedState[Req, S any](
	reg *Registration[Req], stateType string,
	reduce Reducer[S], getEvents EventsFunc[Req],
) (*StateScope[Req, S], error) {
	if reduce == nil || getEvents == nil {
		return nil, ErrStateSourceRequired
	}
	logger := reg.registrar.logger
	return AddState(reg, stateType,
		func(ctx context.Context, req Req) (S, error) {
			evs, err := getEvents(ctx, req)
			if err != nil {
				logger.Warn("Failed to fetch events for state",
					zap.String("name", reg.key),
					zap.String("state", stateType),
					zap.Error(err),
				)
				evs = nil
			}
			return Reduce(reduce, evs), nil
		},
	)
}

// QueryEvents builds an EventsFunc that queries store with the EventQuery
// that build derives from each request
func QueryEvents[Req any](
	store EventStore, build func(Req) EventQuery,
) EventsFunc[Req] {
	return func(ctx context.Context, req Req) ([]*Event, error) {
		return store.Query(ctx, build(req))
	}
}

// Registration returns the Registration the scope belongs to
func (s *StateScope[Req, _]) Registration() *Registration[Req] {
	return s.reg
}

// WithRule appends a stateful rule to the scope's chain
func (s *StateScope[Req, S]) WithRule(
	rule StatefulRule[S, Req],
) *StateScope[Req, S] {
	if rule == nil {
		s.reg.err = errors.Join(s.reg.err, ErrRuleRequired)
		return s
	}
	if !s.reg.live() {
		return s
	}
	s.bound.rules = s.bound.rules.AddRule(rule)
	return s
}

// WithTest appends a stateful rule that yields message when test fails
func (s *StateScope[Req, S]) WithTest(
	message string, test StatefulRuleTest[S, Req],
) *StateScope[Req, S] {
	if test == nil {
		s.reg.err = errors.Join(s.reg.err, ErrRuleRequired)
		return s
	}
	return s.WithRule(MakeStatefulRule(message, test))
}

// WithRules replaces the scope's chain with the one returned by extend,
// which receives the current chain
func (s *StateScope[Req, S]) WithRules(
	extend func(StatefulRuleChain[S, Req]) StatefulRuleChain[S, Req],
) *StateScope[Req, S] {
	if extend == nil {
		s.reg.err = errors.Join(s.reg.err, ErrRuleRequired)
		return s
	}
	if !s.reg.live() {
		return s
	}
	s.bound.rules = extend(s.bound.rules)
	return s
}

func (b *boundState[_, _]) key() string {
	return b.stateKey
}

func (b *boundState[Req, S]) validate(ctx context.Context, req Req) []string {
	state, err := b.derive(ctx, req)
	if err != nil {
		b.logger.Warn("Failed to derive state",
			zap.String("key", b.stateKey),
			zap.String("state", b.stateType),
			zap.Error(err),
		)
		var zero S
		state = zero
	}
	return b.rules.Validate(ctx, state, req)
}

func (b *boundState[Req, S]) derive(
	ctx context.Context, req Req,
) (state S, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero S
			state, err = zero, fmt.Errorf("%w: %v", ErrStateSourcePanic, rec)
		}
	}()
	return b.getState(ctx, req)
}
