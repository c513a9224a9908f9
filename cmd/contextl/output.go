package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	contextl "github.com/goliatone/go-contextl"
)

type resolution struct {
	Start       []string              `json:"start,omitempty"`
	Requested   []string              `json:"requested,omitempty"`
	Stack       []string              `json:"stack"`
	Diagnostics []contextl.Diagnostic `json:"diagnostics,omitempty"`
}

func writeResolution(out io.Writer, format string, r resolution) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "text", "":
		if len(r.Start) > 0 {
			fmt.Fprintf(out, "start:     %s\n", strings.Join(r.Start, " "))
		}
		if len(r.Requested) > 0 {
			fmt.Fprintf(out, "requested: %s\n", strings.Join(r.Requested, " "))
		}
		color.New(color.FgGreen).Fprintf(out, "stack:     [%s]\n", strings.Join(r.Stack, " "))
		warn := color.New(color.FgYellow)
		for _, d := range r.Diagnostics {
			warn.Fprintf(out, "%s %s: %s\n", d.Kind, d.Layer, strings.Join(d.OffendingLayers, ", "))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q (expected text or json)", format)
	}
}
