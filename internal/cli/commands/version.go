package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display sqlstream version, build information and the compiled-in backends
with the backend.params keys each one accepts.`,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "sqlstream v%s\n", version)
			_, _ = fmt.Fprintf(out, "commit %s, built %s\n", commit, date)
			writeBackends(out, backend.Backends())
		},
	}
}

func writeBackends(w io.Writer, backends []backend.Info) {
	width := 0
	for _, b := range backends {
		width = max(width, len(b.Name))
	}
	_, _ = fmt.Fprintln(w, "backends:")
	for _, b := range backends {
		_, _ = fmt.Fprintf(w, "  %-*s  %s\n", width, b.Name, b.Description)
		for _, p := range b.Params {
			line := fmt.Sprintf("  %-*s    params.%s (%s)", width, "", p.Name, p.Type)
			if p.Description != "" {
				line += ": " + p.Description
			}
			_, _ = fmt.Fprintln(w, line)
		}
	}
}
