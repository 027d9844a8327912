package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kode4food/dispatch"
)

// ErrUnknownKind indicates a request kind other than command or query
var ErrUnknownKind = errors.New("kind must be command or query")

func (a *App) invokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invoke <command|query> <name> [json]",
		Short: "Invoke a single command or query and print its result",
		Long: `Invoke dispatches one request through the configured store and pubsub.
The request body is read from the third argument, or from standard input
when the argument is "-".`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.Runtime(ctx)
			if err != nil {
				return err
			}

			var inv *dispatch.Invoker
			switch dispatch.Kind(strings.ToLower(args[0])) {
			case dispatch.KindCommand:
				inv = rt.Commands
			case dispatch.KindQuery:
				inv = rt.Queries
			default:
				return fmt.Errorf("%w: %q", ErrUnknownKind, args[0])
			}

			body, err := readBody(cmd.InOrStdin(), args[2:])
			if err != nil {
				return err
			}

			sub := dispatch.SubscribeEvents(rt.Pubsub, rt.Events, nil)
			defer sub.Unsubscribe()

			res, err := inv.Invoke(ctx, args[1], body)
			if err != nil {
				return err
			}
			return a.print(res)
		},
	}
}

func readBody(in io.Reader, args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return json.RawMessage("null"), nil
	}
	if args[0] != "-" {
		return json.RawMessage(args[0]), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
