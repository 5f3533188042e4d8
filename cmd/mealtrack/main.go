// Command mealtrack records meals against the remote meal service and reports
// on their nutrients. `mealtrack serve` exposes the same operations as a
// local JSON API.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mealtrack/internal/cli"
	"mealtrack/internal/config"
	applog "mealtrack/internal/log"
)

// rootOptions are the flags every subcommand shares.
type rootOptions struct {
	backend string
	userID  int64
	jsonOut bool
	verbose bool
	timeout time.Duration

	// loadConfig is replaced in tests.
	loadConfig func() *config.Config
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	if opts.loadConfig == nil {
		opts.loadConfig = cli.LoadConfig
	}

	root := &cobra.Command{
		Use:   "mealtrack",
		Short: "Track meals and compare nutrient intake",
		Long: `mealtrack keeps a per-day ledger of meals stored by the remote meal service.

Configuration comes from the environment (and a .env file when present):
MEAL_API_URL, MEAL_USER_ID, MEAL_TIMEZONE, DATA_BACKEND, SQLITE_DB_PATH, AMQP_URL...`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "Data backend: http or memory (default from DATA_BACKEND)")
	root.PersistentFlags().Int64Var(&opts.userID, "user", 0, "User id to scope meals to (default from MEAL_USER_ID or the saved session)")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print results as JSON")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Timeout for a single command")

	root.AddCommand(
		newServeCmd(opts),
		newMealsCmd(opts),
		newStatsCmd(opts),
		newOCRCmd(opts),
		newSessionCmd(opts),
	)
	return root
}

// setup loads and validates configuration, applies the global flags and
// wires the app. The caller must Close the app.
func (o *rootOptions) setup(cmd *cobra.Command) (*app, error) {
	cfg := o.loadConfig()
	if o.backend != "" {
		cfg.DataBackend = strings.ToLower(o.backend)
	}
	if o.userID != 0 {
		cfg.UserID = o.userID
	}
	if o.verbose {
		cfg.LogLevel = "debug"
	}

	logger := cli.SetupLogger(cfg, applog.ComponentApp, cmd.ErrOrStderr())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return newApp(ctx, cfg, logger)
}

// commandContext bounds a one-shot command by --timeout.
func (o *rootOptions) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func main() {
	if err := newRootCmd(&rootOptions{}).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
