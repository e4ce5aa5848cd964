package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/orchestrator"
)

func (c *cli) bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Run the bootstrap phases once and exit",
		Long: `Bootstrap provisions what user-server depends on: the users table and
its seed rows, the registry KV bucket, and a Redis reachability check.

The command prints a JSON result to stdout and exits 0 on success or
non-zero on failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runBootstrap(cmd.Context(), os.Stdout)
		},
	}
}

func (c *cli) runBootstrap(ctx context.Context, out io.Writer) error {
	defer c.app.Close(context.Background())

	ctx, cancel := context.WithTimeout(ctx, c.app.Config.Bootstrap.Timeout)
	defer cancel()

	slog.Info("starting bootstrap", "phases", c.app.orchestrator.PhaseNames())

	result, err := c.app.orchestrator.RunBootstrap(ctx)
	if err != nil {
		printJSON(out, map[string]string{"status": orchestrator.StatusError, "error": err.Error()})
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	result.Lock()
	printJSON(out, result)
	result.Unlock()

	if result.Status == orchestrator.StatusError {
		return fmt.Errorf("bootstrap completed with errors: %v", result.Failed())
	}
	slog.Info("bootstrap completed successfully")
	return nil
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(out, `{"status":%q}`+"\n", orchestrator.StatusError)
	}
}
