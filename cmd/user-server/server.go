package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/runtime"
)

func (c *cli) serverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the user-server HTTP API",
		Long: `Start user-server on the configured port (default :8082).

The server registers itself with the service registry, runs the bootstrap
phases once, and shuts down cleanly on SIGTERM or SIGINT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServer(cmd.Context())
		},
	}
}

// runServer starts exactly one runtime and returns when it exits. A startup
// failure, such as the port being taken, is returned to the caller.
func (c *cli) runServer(ctx context.Context) error {
	return c.newRuntime().Run(ctx)
}

// newRuntime hands the app's clients to a runtime serving the router, with
// the one-shot bootstrap as a background task.
func (c *cli) newRuntime() *runtime.Runtime {
	rt := c.app.NewRuntime(c.app.router.Handler())
	rt.AddTask("bootstrap", c.app.bootstrapOnce)
	return rt
}
