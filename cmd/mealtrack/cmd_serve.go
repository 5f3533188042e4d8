package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mealtrack/internal/cli"
	apphttp "mealtrack/internal/http"
	applog "mealtrack/internal/log"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port           string
		cleanupEvery   time.Duration
		prefetchDays   int
		shutdownWithin time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the meal ledger as a local JSON API",
		Long: `Serve the meal ledger over HTTP.

Routes:
  GET    /api/meals/{date}         meals of a day (?refresh=1 refetches)
  POST   /api/meals/{date}         log a meal
  PUT    /api/meals/{date}/{id}    change a meal
  DELETE /api/meals/{date}/{id}    remove a meal
  GET    /api/summary/{date}       day totals
  GET    /api/week/{date}          totals and averages of the week holding date
  GET    /api/calendar/{month}     meal counts per day of a YYYY-MM month
  GET    /api/compare/{date}       intake vs. survey averages (?age=, ?source=remote)
  GET    /api/averages/{group}     survey averages of an age group
  POST   /api/ocr                  scan a label photo (multipart field "image")
  GET    /api/session, PUT /api/session
  GET    /api/state, /api/metrics, /healthz, /readyz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if port == "" {
				port = a.cfg.Port
			}
			logger := a.logger

			if prefetchDays > 0 {
				ctx, cancel := opts.commandContext(cmd)
				today := a.cal.Today()
				if err := a.ledger.FetchRange(ctx, today.AddDate(0, 0, -(prefetchDays-1)), today); err != nil {
					logger.Warn("Prefetch incomplete", applog.FieldError, err)
				}
				cancel()
			}

			a.caches.StartCleanup(cleanupEvery)
			srv := apphttp.NewServer(":"+port, apphttp.Deps{
				Ledger:   a.ledger,
				Stats:    a.stats,
				Scanner:  a.backend,
				Sessions: a.repo,
				Caches:   a.caches,
				Logger:   logger,
			}, apphttp.Options{
				RateLimitPerMinute: a.cfg.RateLimitPerMinute,
				TrustedProxies:     a.cfg.TrustedProxies,
			})

			ctx, done := cli.GracefulShutdown(logger, shutdownWithin, func(ctx context.Context) {
				if err := srv.Shutdown(ctx); err != nil {
					logger.Error("Server shutdown error", applog.FieldError, err)
				}
			})

			logger.Info("Starting HTTP server",
				"addr", srv.Addr,
				"backend", a.cfg.DataBackend,
				applog.FieldUserID, a.ledger.UserID())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			cli.WaitForShutdown(ctx, done)
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Port to listen on (default from PORT)")
	cmd.Flags().DurationVar(&cleanupEvery, "cache-cleanup", 5*time.Minute, "How often expired cache entries are evicted")
	cmd.Flags().IntVar(&prefetchDays, "prefetch-days", 7, "Days up to today loaded into the ledger at start")
	cmd.Flags().DurationVar(&shutdownWithin, "shutdown-timeout", 30*time.Second, "Grace period for in-flight requests")
	return cmd
}
