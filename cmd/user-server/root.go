package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/config"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/telemetry"
)

// cli carries flag values and the AppContext between cobra hooks.
type cli struct {
	cfgFile  string
	logLevel string
	envFile  string

	app *userApp
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "user-server",
		Short: "user-server serves user info lookups",
		Long: `user-server answers GET /user/{uid} with a string describing the user.
Running it without a subcommand is the same as "user-server server".`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServer(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "path to config file (YAML)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "optional .env file loaded before reading config")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if c.envFile != "" {
			if err := godotenv.Load(c.envFile); err != nil {
				return fmt.Errorf("loading env file: %w", err)
			}
		}

		cfg, err := config.Load(config.UserServer, c.cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		// --log-level flag takes precedence over the config value.
		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = c.logLevel
		}

		logger := telemetry.NewLogger(os.Stdout, cfg.Telemetry.LogLevel, config.UserServer)
		slog.SetDefault(logger)

		c.app, err = buildUserApp(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("building app context: %w", err)
		}
		return nil
	}

	root.AddCommand(c.serverCmd(), c.bootstrapCmd())
	return root
}

// Execute is the entry point called by main. Any error exits non-zero.
func Execute() {
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
