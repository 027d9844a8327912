package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
)

type (
	// Registrar binds case-insensitive request names to handlers along with
	// their guards, rule chains, and projected state tests. Registration is
	// a single-threaded setup phase; once traffic begins the Registrar is
	// only read and may be dispatched from any number of goroutines
	Registrar struct {
		bindings map[string]binding
		logger   *zap.Logger
		kind     Kind
		config   RegistrarConfig
	}

	// Registration accretes guards and rules onto a registered handler
	Registration[Req any] struct {
		registrar *Registrar
		bound     *boundHandler[Req]
		err       error
		key       string
	}

	binding interface {
		dispatch(ctx context.Context, name string, req any) (*Result, error)
	}

	boundHandler[Req any] struct {
		handler Handler[Req]
		rules   RuleChain[Req]
		guards  []Guard[Req]
		states  []stateTest[Req]
	}
)

// StateKeySeparator joins a request name and a state type into a state test
// key. Neither part may contain it
const StateKeySeparator = ":"

var (
	// ErrNameRequired indicates a blank request name
	ErrNameRequired = errors.New("name must be a non-empty string")

	// ErrHandlerRequired indicates a nil handler
	ErrHandlerRequired = errors.New("handler must be a function")

	// ErrReservedSeparator indicates a name or state type containing the
	// state key separator
	ErrReservedSeparator = fmt.Errorf(
		"name and state type must not contain %q", StateKeySeparator,
	)

	// ErrDuplicateHandler indicates a name was registered twice while the
	// Registrar rejects collisions
	ErrDuplicateHandler = errors.New("handler already registered")

	// ErrGuardRequired indicates a nil guard
	ErrGuardRequired = errors.New("guard must be a function")

	// ErrRuleRequired indicates a nil rule
	ErrRuleRequired = errors.New("rule must be a function")

	// ErrRegistrationReplaced indicates a builder call on a Registration
	// whose binding was replaced by a registration with another request
	// type. The call has no effect
	ErrRegistrationReplaced = errors.New("registration was replaced")
)

// NewRegistrar creates an empty Registrar for the given kind of request
func NewRegistrar(kind Kind, cfg RegistrarConfig) *Registrar {
	return &Registrar{
		bindings: map[string]binding{},
		logger:   loggerOrNop(cfg.Logger),
		kind:     kind,
		config:   cfg,
	}
}

// Register binds name to handler. Registering the same name again replaces
// the handler and keeps the guards and rules already accreted, unless the
// request type changes, in which case the whole binding is replaced. When
// the Registrar is configured to Reject collisions, the second registration
// fails instead
func Register[Req any](
	r *Registrar, name string, handler Handler[Req],
) (*Registration[Req], error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}
	key, err := foldName(name)
	if err != nil {
		return nil, err
	}

	if existing, ok := r.bindings[key]; ok {
		if r.config.OnCollision == Reject {
			return nil, fmt.Errorf("%w: %s '%s'", ErrDuplicateHandler, r.kind, key)
		}
		if b, ok := existing.(*boundHandler[Req]); ok {
			b.handler = handler
			r.logger.Info("Replaced handler",
				zap.String("kind", string(r.kind)),
				zap.String("name", key),
			)
			return &Registration[Req]{registrar: r, bound: b, key: key}, nil
		}
		r.logger.Warn("Replaced handler with a different request type",
			zap.String("kind", string(r.kind)),
			zap.String("name", key),
		)
	}

	b := &boundHandler[Req]{
		handler: handler,
		rules:   NewRuleChain[Req](),
	}
	r.bindings[key] = b
	r.logger.Info("Registered handler",
		zap.String("kind", string(r.kind)),
		zap.String("name", key),
	)
	return &Registration[Req]{registrar: r, bound: b, key: key}, nil
}

// Kind returns the kind of request this Registrar handles
func (r *Registrar) Kind() Kind {
	return r.kind
}

// Has reports whether a handler is registered for name
func (r *Registrar) Has(name string) bool {
	_, ok := r.bindings[strings.ToLower(name)]
	return ok
}

// Names returns the registered (case-folded) names in sorted order
func (r *Registrar) Names() []string {
	res := make([]string, 0, len(r.bindings))
	for key := range r.bindings {
		res = append(res, key)
	}
	slices.Sort(res)
	return res
}

// Dispatch validates req against everything registered under name and, if
// no check fails, hands it to the handler. Lookup and validation failures
// are reported through the Result; only handler failures are returned as
// errors
func (r *Registrar) Dispatch(
	ctx context.Context, name string, req any,
) (*Result, error) {
	b, ok := r.bindings[strings.ToLower(name)]
	if !ok {
		return FromError(fmt.Sprintf("no handler for '%s'", name)), nil
	}
	return b.dispatch(ctx, name, req)
}

// Key returns the case-folded name the Registration is stored under
func (reg *Registration[_]) Key() string {
	return reg.key
}

// Err returns the accumulated errors of builder calls that were rejected
func (reg *Registration[_]) Err() error {
	return reg.err
}

// WithGuard adds a guard. Guards run after the rule chain, in the order
// they were added
func (reg *Registration[Req]) WithGuard(guard Guard[Req]) *Registration[Req] {
	if guard == nil {
		reg.err = errors.Join(reg.err, ErrGuardRequired)
		return reg
	}
	if !reg.live() {
		return reg
	}
	reg.bound.guards = append(reg.bound.guards, guard)
	return reg
}

// WithRule appends a rule to the registration's rule chain
func (reg *Registration[Req]) WithRule(rule Rule[Req]) *Registration[Req] {
	if rule == nil {
		reg.err = errors.Join(reg.err, ErrRuleRequired)
		return reg
	}
	if !reg.live() {
		return reg
	}
	reg.bound.rules = reg.bound.rules.AddRule(rule)
	return reg
}

// WithTest appends a rule that yields message when test fails
func (reg *Registration[Req]) WithTest(
	message string, test RuleTest[Req],
) *Registration[Req] {
	if test == nil {
		reg.err = errors.Join(reg.err, ErrRuleRequired)
		return reg
	}
	return reg.WithRule(MakeRule(message, test))
}

// WithRules replaces the rule chain with the one returned by extend, which
// receives the current chain
func (reg *Registration[Req]) WithRules(
	extend func(RuleChain[Req]) RuleChain[Req],
) *Registration[Req] {
	if extend == nil {
		reg.err = errors.Join(reg.err, ErrRuleRequired)
		return reg
	}
	if !reg.live() {
		return reg
	}
	reg.bound.rules = extend(reg.bound.rules)
	return reg
}

// live reports whether the Registration still addresses the registered
// binding, recording ErrRegistrationReplaced when it does not
func (reg *Registration[_]) live() bool {
	if b, ok := reg.registrar.bindings[reg.key]; ok && b == binding(reg.bound) {
		return true
	}
	reg.err = errors.Join(reg.err, fmt.Errorf("%w: %s '%s'",
		ErrRegistrationReplaced, reg.registrar.kind, reg.key,
	))
	return false
}

func (b *boundHandler[Req]) dispatch(
	ctx context.Context, name string, raw any,
) (*Result, error) {
	req, err := decodeRequest[Req](raw)
	if err != nil {
		return FromError(
			fmt.Sprintf("invalid request for '%s': %s", name, err),
		), nil
	}

	if errs := b.validate(ctx, req); len(errs) > 0 {
		return FromErrors(errs), nil
	}

	res, err := b.handler(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return FromEvents(nil), nil
	}
	return res, nil
}

// validate runs every check and never short-circuits: the rule chain, then
// the guards, then the state tests in registration order
func (b *boundHandler[Req]) validate(ctx context.Context, req Req) []string {
	errs := b.rules.Validate(ctx, req)
	for _, guard := range b.guards {
		errs = append(errs, guard(ctx, req)...)
	}
	for _, st := range b.states {
		errs = append(errs, st.validate(ctx, req)...)
	}
	return errs
}

func decodeRequest[Req any](raw any) (Req, error) {
	var req Req
	if r, ok := raw.(Req); ok {
		return r, nil
	}

	var data []byte
	switch v := raw.(type) {
	case nil:
		return req, nil
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	case *Event:
		data = v.Data
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return req, err
		}
		data = b
	}

	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, err
	}
	return req, nil
}

func foldName(name string) (string, error) {
	if name == "" {
		return "", ErrNameRequired
	}
	if strings.Contains(name, StateKeySeparator) {
		return "", ErrReservedSeparator
	}
	return strings.ToLower(name), nil
}
