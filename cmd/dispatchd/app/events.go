package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kode4food/dispatch"
)

// ErrInvalidProperty indicates a --where flag not written as key=value
var ErrInvalidProperty = errors.New("property must be key=value")

func (a *App) eventsCommand() *cobra.Command {
	var (
		name  string
		where []string
		skip  int
		take  int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stored events",
		Long: `Events queries the configured store. Each --where value is parsed as
JSON when possible and compared as a string otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := a.Runtime(ctx)
			if err != nil {
				return err
			}

			qb := dispatch.NewQueryBuilder()
			if name != "" {
				qb = qb.SetProperty(dispatch.PropertyName, name)
			}
			for _, w := range where {
				key, value, err := parseProperty(w)
				if err != nil {
					return err
				}
				qb = qb.SetProperty(key, value)
			}
			if cmd.Flags().Changed("skip") {
				qb = qb.SetSkip(dispatch.Int(skip))
			}
			if cmd.Flags().Changed("take") {
				qb = qb.SetTake(dispatch.Int(take))
			}

			evs, err := rt.Store.Query(ctx, qb.Build())
			if err != nil {
				return err
			}
			return a.print(evs)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "event name")
	flags.StringArrayVar(&where, "where", nil, "payload property (key=value)")
	flags.IntVar(&skip, "skip", 0, "number of matching events to skip")
	flags.IntVar(&take, "take", 0, "maximum number of events to return")
	return cmd
}

func parseProperty(s string) (string, any, error) {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidProperty, s)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return key, raw, nil
	}
	return key, value, nil
}
