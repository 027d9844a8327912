// Package demo registers a small sample domain: silly things that happen in
// a color, a query over them, and renameable things whose current name is
// projected from their past events
package demo

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kode4food/dispatch"
)

type (
	// Registrars holds one Registrar per kind of request
	Registrars struct {
		Commands *dispatch.Registrar
		Queries  *dispatch.Registrar
		Events   *dispatch.Registrar
	}

	DoSillyThing struct {
		Color string `json:"color"`
	}

	SillyThingHappened struct {
		Color string `json:"color"`
	}

	FindSillyThingEvents struct {
		Skip  *int    `json:"skip,omitempty"`
		Take  *int    `json:"take,omitempty"`
		Color *string `json:"color,omitempty"`
	}

	Rename struct {
		Thing string `json:"thing"`
		Name  string `json:"name"`
	}

	Renamed struct {
		Thing    string `json:"thing"`
		Name     string `json:"name"`
		Previous string `json:"previous,omitempty"`
	}

	FindRenames struct {
		Thing string `json:"thing"`
	}

	// Thing is the projected state of a renameable thing
	Thing struct {
		Name    string
		Renames int
	}
)

const (
	CommandDoSillyThing = "DoSillyThing"
	CommandRename       = "Rename"

	QueryFindSillyThingEvents = "FindSillyThingEvents"
	QueryFindRenames          = "FindRenames"

	EventSillyThingHappened dispatch.EventType = "SillyThingHappened"
	EventRenamed            dispatch.EventType = "Renamed"

	StateThing = "thing"

	MinNameLength = 4
)

// Error messages produced by the sample rules
const (
	ErrNameTooShort  = "name must be ≥4 characters"
	ErrNameUnchanged = "name must differ from the current name"
	ErrThingRequired = "thing is required"
)

var validColors = []string{"red", "green", "blue"}

// NewRegistrars creates empty command, query, and event Registrars
func NewRegistrars(cfg dispatch.RegistrarConfig) *Registrars {
	return &Registrars{
		Commands: dispatch.NewRegistrar(dispatch.KindCommand, cfg),
		Queries:  dispatch.NewRegistrar(dispatch.KindQuery, cfg),
		Events:   dispatch.NewRegistrar(dispatch.KindEvent, cfg),
	}
}

// Register binds the sample domain to r. Queries and projected state read
// from store
func Register(
	r *Registrars, store dispatch.EventStore, logger *zap.Logger,
) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, register := range []func() error{
		func() error { return registerDoSillyThing(r.Commands) },
		func() error { return registerRename(r.Commands, store) },
		func() error { return registerFindSillyThingEvents(r.Queries, store) },
		func() error { return registerFindRenames(r.Queries, store) },
		func() error { return registerSillyThingHappened(r.Events, logger) },
	} {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

// ColorMustBeValid rejects colors outside the supported set
func ColorMustBeValid(_ context.Context, req DoSillyThing) []string {
	if slices.Contains(validColors, req.Color) {
		return nil
	}
	return []string{
		fmt.Sprintf("color must be one of [%s]", strings.Join(validColors, ", ")),
	}
}

// ApplyRenamed projects a Renamed event onto a Thing
func ApplyRenamed(t *Thing, _ *dispatch.Event, data Renamed) *Thing {
	res := &Thing{Name: data.Name, Renames: 1}
	if t != nil {
		res.Renames = t.Renames + 1
	}
	return res
}

// ThingReducer folds a thing's events into its projected state
func ThingReducer() dispatch.Reducer[*Thing] {
	return dispatch.MakeReducer(dispatch.Appliers[*Thing]{
		EventRenamed: dispatch.MakeApplier(ApplyRenamed),
	})
}

func registerDoSillyThing(reg *dispatch.Registrar) error {
	r, err := dispatch.Register(reg, CommandDoSillyThing,
		func(_ context.Context, req DoSillyThing) (*dispatch.Result, error) {
			ev, err := dispatch.NewEvent(EventSillyThingHappened,
				SillyThingHappened(req),
			)
			if err != nil {
				return nil, err
			}
			return dispatch.FromEvent(ev), nil
		},
	)
	if err != nil {
		return err
	}
	return r.WithRule(ColorMustBeValid).Err()
}

func registerRename(reg *dispatch.Registrar, store dispatch.EventStore) error {
	r, err := dispatch.Register(reg, CommandRename,
		func(ctx context.Context, req Rename) (*dispatch.Result, error) {
			rec := dispatch.NewRecorder()
			prev, err := currentName(ctx, store, req.Thing)
			if err != nil {
				return nil, err
			}
			err = dispatch.Raise(rec, EventRenamed, Renamed{
				Thing:    req.Thing,
				Name:     req.Name,
				Previous: prev,
			})
			if err != nil {
				return nil, err
			}
			return rec.Result(), nil
		},
	)
	if err != nil {
		return err
	}

	r.WithTest(ErrNameTooShort, func(_ context.Context, req Rename) bool {
		return utf8.RuneCountInString(req.Name) >= MinNameLength
	})

	if store == nil {
		return r.Err()
	}

	scope, err := dispatch.AddReducedState(r, StateThing, ThingReducer(),
		dispatch.QueryEvents(store, renamesOf),
	)
	if err != nil {
		return err
	}
	scope.WithTest(ErrNameUnchanged,
		func(_ context.Context, t *Thing, req Rename) bool {
			return t == nil || t.Name != req.Name
		},
	)
	return r.Err()
}

func registerFindSillyThingEvents(
	reg *dispatch.Registrar, store dispatch.EventStore,
) error {
	_, err := dispatch.Register(reg, QueryFindSillyThingEvents,
		func(
			ctx context.Context, req FindSillyThingEvents,
		) (*dispatch.Result, error) {
			if store == nil {
				return dispatch.FromEvents(nil), nil
			}
			q := dispatch.NewQueryBuilder().
				SetSkip(req.Skip).
				SetTake(req.Take).
				SetProperty(dispatch.PropertyName, EventSillyThingHappened).
				SetProperty("color", req.Color).
				Build()
			evs, err := store.Query(ctx, q)
			if err != nil {
				return nil, err
			}
			return dispatch.FromEvents(evs), nil
		},
	)
	return err
}

func registerFindRenames(
	reg *dispatch.Registrar, store dispatch.EventStore,
) error {
	r, err := dispatch.Register(reg, QueryFindRenames,
		func(ctx context.Context, req FindRenames) (*dispatch.Result, error) {
			if store == nil {
				return dispatch.FromEvents(nil), nil
			}
			evs, err := store.Query(ctx, renamesOf(Rename{Thing: req.Thing}))
			if err != nil {
				return nil, err
			}
			return dispatch.FromEvents(evs), nil
		},
	)
	if err != nil {
		return err
	}
	return r.WithTest(ErrThingRequired,
		func(_ context.Context, req FindRenames) bool {
			return req.Thing != ""
		},
	).Err()
}

func registerSillyThingHappened(
	reg *dispatch.Registrar, logger *zap.Logger,
) error {
	_, err := dispatch.Register(reg, string(EventSillyThingHappened),
		func(
			_ context.Context, ev SillyThingHappened,
		) (*dispatch.Result, error) {
			logger.Info("A silly thing happened", zap.String("color", ev.Color))
			return dispatch.FromEvents(nil), nil
		},
	)
	return err
}

func renamesOf(req Rename) dispatch.EventQuery {
	return dispatch.NewQueryBuilder().
		SetProperty(dispatch.PropertyName, EventRenamed).
		SetProperty("thing", req.Thing).
		Build()
}

func currentName(
	ctx context.Context, store dispatch.EventStore, thing string,
) (string, error) {
	if store == nil {
		return "", nil
	}
	evs, err := store.Query(ctx, renamesOf(Rename{Thing: thing}))
	if err != nil {
		return "", err
	}
	if t := dispatch.Reduce(ThingReducer(), evs); t != nil {
		return t.Name, nil
	}
	return "", nil
}
