package main

import (
	"context"

	contextl "github.com/goliatone/go-contextl"
	"github.com/spf13/cobra"
)

func newResolveCommand(root *rootOptions) *cobra.Command {
	var from []string
	var output string

	cmd := &cobra.Command{
		Use:   "resolve LAYER...",
		Short: "Activate layers and print the resulting stack",
		Long:  "resolve activates the given layers, first listed highest, on top of the --from stack and prints the stack and any ordering diagnostics.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(root)
			if err != nil {
				return err
			}
			defer s.close()

			base, err := s.layers(from)
			if err != nil {
				return err
			}
			requested, err := s.layers(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, err = contextl.Activate(ctx, base...)
			if err != nil {
				return err
			}
			start := contextl.ActiveLayers(ctx).Names()
			s.takeDiagnostics()

			ctx, err = contextl.Activate(ctx, requested...)
			if err != nil {
				return err
			}
			return writeResolution(cmd.OutOrStdout(), output, resolution{
				Start:       start,
				Requested:   args,
				Stack:       contextl.ActiveLayers(ctx).Names(),
				Diagnostics: s.takeDiagnostics(),
			})
		},
	}
	cmd.Flags().StringSliceVar(&from, "from", nil, "Layers active before the request, first listed highest")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	return cmd
}
