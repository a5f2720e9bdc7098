package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cardscan/internal/app"
	"cardscan/internal/identify"
	"cardscan/internal/logging"
	"cardscan/internal/operator"
	"cardscan/internal/preflight"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var sessionTTL time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the operator HTTP API",
		Long: `Serves the operator interface under /api on paths.api_bind. Captures posted
to /api/identify stay pending until the operator confirms, corrects, retries
or cancels them. Catalog builds started over the API report progress on the
/api/catalog/build/events websocket.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Paths.APIBind = bind
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return ctx.withApp(runCtx, func(a *app.App) error {
				for _, check := range preflight.Failed(preflight.RunAll(runCtx, cfg, true)) {
					logging.WarnWithContext(a.Logger, "preflight check failed", "preflight_failed",
						logging.String("check", check.Name),
						logging.String("detail", check.Detail),
						logging.String(logging.FieldImpact, "affected operator routes may fail"),
					)
				}
				srv, err := operator.New(cfg, operator.Deps{
					Engine:     a.Engine,
					Registry:   identify.NewRegistry(),
					Catalog:    a.Catalog,
					Builder:    a.Builder,
					Source:     a.Client,
					Search:     a.Search,
					SessionTTL: sessionTTL,
				}, a.Logger)
				if err != nil {
					return err
				}
				if err := srv.Start(runCtx); err != nil {
					return err
				}
				<-runCtx.Done()
				srv.Stop()
				a.Logger.Info("api server stopped", logging.String("address", srv.Addr()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default paths.api_bind)")
	cmd.Flags().DurationVar(&sessionTTL, "session-ttl", 30*time.Minute, "How long identification sessions stay available")
	return cmd
}
