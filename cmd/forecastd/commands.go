package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ForecastPull/internal/di"
	"ForecastPull/pkg/config"
	"ForecastPull/pkg/logger"
	"ForecastPull/pkg/server"
)

var (
	configPath string
	fillGaps   bool

	rootCmd = &cobra.Command{
		Use:           "forecastd",
		Short:         "Produce hourly forecasts for configured assets and evaluate them against observations",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Catch up, then run the forecast cycle and gap audit on schedule and serve the API",
		RunE: withApp(func(ctx context.Context, app *server.App) error {
			return app.Serve(ctx)
		}),
	}

	backfillCmd = &cobra.Command{
		Use:   "backfill",
		Short: "Walk every asset from run.start to run.end once, then evaluate",
		RunE: withApp(func(ctx context.Context, app *server.App) error {
			return app.Backfill(ctx)
		}),
	}

	metricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Run the pointwise, aggregated and windowed metric tiers once",
		RunE: withApp(func(ctx context.Context, app *server.App) error {
			res, err := app.Metrics(ctx)
			printJSON(res)
			return err
		}),
	}

	gapsCmd = &cobra.Command{
		Use:   "gaps",
		Short: "Report missing hours per asset over the extended data range",
		RunE: withApp(func(ctx context.Context, app *server.App) error {
			reps, err := app.Gaps(ctx, fillGaps)
			printJSON(reps)
			return err
		}),
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
	gapsCmd.Flags().BoolVar(&fillGaps, "fill", false, "fetch missing hours from the market data source before reporting")

	rootCmd.AddCommand(serveCmd, backfillCmd, metricsCmd, gapsCmd)
}

// withApp loads config, wires the application and runs fn under a context cancelled on SIGINT or
// SIGTERM.
func withApp(fn func(ctx context.Context, app *server.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadWithEnv(configPath)
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		l, err := di.ProvideLogger(cfg)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, cleanup, err := di.InitializeApp(cfg, l)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		defer cleanup()

		l.Info("forecastd starting",
			logger.String("command", cmd.Name()),
			logger.String("env", cfg.Environment),
			logger.Strings("assets", cfg.Run.Assets),
			logger.Int("models", len(cfg.Models)),
		)
		return fn(ctx, app)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
