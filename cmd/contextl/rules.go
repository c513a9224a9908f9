package main

import (
	"context"
	"fmt"

	contextl "github.com/goliatone/go-contextl"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRulesCommand(root *rootOptions) *cobra.Command {
	var args map[string]string
	var metadata map[string]string
	var output string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Evaluate activation rules and print the resulting stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(root)
			if err != nil {
				return err
			}
			defer s.close()

			if len(s.loaded.Rules) == 0 {
				return fmt.Errorf("%s defines no rules", root.file)
			}
			rules, err := contextl.NewRuleSet(s.loaded.Rules, contextl.WithEvaluatorLogger(s.adapter))
			if err != nil {
				return err
			}
			rc := contextl.RuleContext{}
			if rc.Args, err = scalars(args); err != nil {
				return err
			}
			if rc.Metadata, err = scalars(metadata); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			matched, err := rules.Match(ctx, rc)
			if err != nil {
				return err
			}
			ctx, err = contextl.Activate(ctx, matched...)
			if err != nil {
				return err
			}
			requested := make([]string, 0, len(matched))
			for _, layer := range matched {
				requested = append(requested, layer.Name())
			}
			return writeResolution(cmd.OutOrStdout(), output, resolution{
				Requested:   requested,
				Stack:       contextl.ActiveLayers(ctx).Names(),
				Diagnostics: s.takeDiagnostics(),
			})
		},
	}
	cmd.Flags().StringToStringVar(&args, "arg", nil, "Rule argument as key=value (values are parsed as YAML scalars)")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "Rule metadata as key=value (values are parsed as YAML scalars)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	return cmd
}

// scalars decodes each flag value as a YAML scalar so true, 3 and 1.5 reach
// the expressions typed.
func scalars(values map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for key, raw := range values {
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("parse value for %s: %w", key, err)
		}
		out[key] = value
	}
	return out, nil
}
