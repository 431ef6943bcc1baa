package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlstream/internal/state"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit  int
	Format string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history [SESSION_ID]",
		Short: "Show recorded stream sessions",
		Long: `List stream sessions recorded in the state database, newest first, or
show one session in detail.`,
		Example: `  sqlstream history
  sqlstream history --limit 5 -f json
  sqlstream history 2f1c9a4e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Number of sessions to show")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table or json (default: config output)")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string, opts *HistoryOptions) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	format := opts.Format
	if format == "" {
		format = cmdCtx.Cfg.OutputFormat
	}

	if _, err := os.Stat(cmdCtx.Cfg.StatePath); os.IsNotExist(err) {
		return fmt.Errorf("state database not found at %s (run 'sqlstream stream' or 'sqlstream serve' first)", cmdCtx.Cfg.StatePath)
	}

	journal, err := cmdCtx.OpenJournal()
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	var recs []state.SessionRecord
	if len(args) == 1 {
		rec, err := journal.Get(ctx, args[0])
		if err != nil {
			return err
		}
		recs = []state.SessionRecord{*rec}
	} else {
		recs, err = journal.List(ctx, opts.Limit)
		if err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Ref", "Status", "Interval", "Ticks", "Skipped", "Errors", "Rows", "Started", "Duration"})
	for _, r := range recs {
		t.AppendRow(table.Row{
			shortID(r.ID), r.RefID, r.Status,
			(time.Duration(r.Interval) * time.Millisecond).String(),
			r.Ticks, r.Skipped, r.Errors, r.Rows,
			r.StartedAt.Local().Format(time.DateTime),
			sessionDuration(r).Round(time.Second).String(),
		})
	}
	t.Render()

	if len(args) == 1 {
		r := recs[0]
		_, _ = fmt.Fprintf(w, "\nQuery:\n  %s\n", r.Query)
		if r.LastError != "" {
			_, _ = fmt.Fprintf(w, "Last error:\n  %s\n", r.LastError)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sessionDuration(r state.SessionRecord) time.Duration {
	if r.StoppedAt != nil {
		return r.StoppedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}
