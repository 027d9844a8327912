package app

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kode4food/dispatch"
	"github.com/kode4food/dispatch/web"
)

func (a *App) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve commands and queries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := a.Runtime(ctx)
			if err != nil {
				return err
			}

			sub := dispatch.SubscribeEvents(rt.Pubsub, rt.Events, nil)
			defer sub.Unsubscribe()

			srv := web.New(web.Config{
				Commands: rt.Commands,
				Queries:  rt.Queries,
				Logger:   a.logger,
			})
			a.logger.Info("Starting dispatchd",
				zap.String("store", a.config.Store.Kind),
				zap.String("pubsub", a.config.Pubsub.Kind),
				zap.Strings("commands", rt.Registrars.Commands.Names()),
				zap.Strings("queries", rt.Registrars.Queries.Names()),
			)
			return srv.Start(ctx, a.config.HTTP.Addr)
		},
	}

	cmd.Flags().String("addr", "", "HTTP listen address")
	if err := a.viper.BindPFlag("http.addr", cmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}
	return cmd
}
