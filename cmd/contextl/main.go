// main.go bootstraps contextl: it builds the root Cobra command and executes it
// with a signal-aware context.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		cancel()
		os.Exit(1)
	}
}

type rootOptions struct {
	file     string
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{logLevel: "warn"}
	cmd := &cobra.Command{
		Use:           "contextl",
		Short:         "Inspect layer definitions and the stacks they resolve to",
		Long:          "contextl loads layer definitions from YAML or JSON and shows how activation requests and rules expand into active layer stacks.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.file, "file", "f", "", "Layer definitions file (.yaml, .yml or .json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level: debug, info, warn or error")
	_ = cmd.MarkPersistentFlagRequired("file")

	cmd.AddCommand(
		newResolveCommand(opts),
		newRulesCommand(opts),
		newLayersCommand(opts),
	)
	return cmd
}
