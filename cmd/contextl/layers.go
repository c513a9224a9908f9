package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newLayersCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "List the layers defined in the definitions file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(root)
			if err != nil {
				return err
			}
			defer s.close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tBEFORE\tAFTER\tWARN\tCACHEABLE")
			for _, layer := range s.loaded.Layers {
				desc := layer.Descriptor()
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n",
					layer.Name(),
					orDash(desc.RequiredBefore),
					orDash(desc.RequiredAfter),
					desc.WarnOnOddities,
					desc.Cacheable,
				)
			}
			return w.Flush()
		},
	}
}

func orDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
