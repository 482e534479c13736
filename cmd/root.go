// Package cmd defines and implements the CLI commands for the hrfinder executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hr-contact-discovery/internal/config"
	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
	"github.com/JakeFAU/hr-contact-discovery/internal/server"
	"github.com/JakeFAU/hr-contact-discovery/internal/store"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Run(ctx context.Context) error
	Discover(ctx context.Context, req discovery.Request) (store.Run, error)
	Close(ctx context.Context) error
	Logger() *zap.Logger
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hrfinder",
		Short: "Discovers likely HR and recruiting email addresses for a person or company.",
		Long: `hrfinder combines naming-pattern inference, a bounded crawl of the
company website and a rendered web search to produce a ranked list of
candidate HR contact addresses. Run it as an HTTP service with "serve" or
for a single lookup with "discover".`,
		SilenceUsage: true,

		// Config is loaded and the application built once flags are parsed
		// but before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				_ = appInstance.Close(context.Background())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./hrfinder.yaml or /etc/hrfinder/hrfinder.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDiscoverCmd())

	return cmd
}

// resolveApp pulls the App built by the root command out of ctx.
func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
