// Package cmd defines the CLI commands for the moltpulse executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/app"
	"github.com/moltpulse/moltpulse/internal/config"
	"github.com/moltpulse/moltpulse/internal/orchestrator"
	"github.com/moltpulse/moltpulse/internal/storage"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the application surface commands use. Tests inject a mock through
// newApp.
type App interface {
	Close()
	Config() *config.Config
	Logger() *zap.Logger
	Orchestrator() *orchestrator.Orchestrator
	Traces() storage.TraceStore
}

// newApp is the application factory, a variable so tests can replace it.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "moltpulse",
		Short: "Domain intelligence collector and report generator.",
		Long: `moltpulse collects news, market quotes, social posts, and industry feeds
for a configured domain, scores and deduplicates the results, and assembles
them into a briefing report.`,

		// Runs after flags are parsed but before the subcommand's RunE; the
		// built App is handed to subcommands through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initializing application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is moltpulse.yaml in the working directory)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newPreflightCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
