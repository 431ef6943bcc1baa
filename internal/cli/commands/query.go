package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlstream/internal/query"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format       string
	Input        string
	ResultFormat string
	Last         time.Duration
	IntervalMs   int64
	Vars         map[string]string
}

// target builds the one-off target for sql.
func (o *QueryOptions) target(sql string) (core.Target, error) {
	format, err := core.ParseFormat(o.ResultFormat)
	if err != nil {
		return core.Target{}, err
	}
	return core.Target{RefID: "A", Query: sql, Format: format, IntervalMs: o.IntervalMs}, nil
}

// timeRange returns the window ending now, or the zero range.
func (o *QueryOptions) timeRange(now time.Time) core.TimeRange {
	if o.Last <= 0 {
		return core.TimeRange{}
	}
	return core.TimeRange{From: now.Add(-o.Last), To: now}
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a one-off query against the backend",
		Long: `Run a single non-streaming query against the configured backend.

Variables such as $__from, $__to and ${name} are substituted before the
query is sent. When invoked without SQL and attached to a terminal, enters
interactive REPL mode.`,
		Example: `  # Execute SQL directly
  sqlstream query "SELECT 1 AS one"

  # Shape a long result into one column per series
  sqlstream query --result-format time_series --last 1h \
    "SELECT ts AS time, host, cpu FROM metrics WHERE ts BETWEEN '$__from' AND '$__to'"

  # Output as CSV
  sqlstream query -f csv --input report.sql

  # Interactive mode
  sqlstream query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table, json, csv, markdown (default: config output)")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().StringVar(&opts.ResultFormat, "result-format", string(core.FormatTable), "Result shape: table or time_series")
	cmd.Flags().DurationVar(&opts.Last, "last", 0, "Query the window ending now, e.g. 1h")
	cmd.Flags().Int64Var(&opts.IntervalMs, "interval-ms", 0, "Bucket width in milliseconds for $__interval and gap filling")
	cmd.Flags().StringToStringVar(&opts.Vars, "var", nil, "Template variable, e.g. --var host=db1")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{FormatTable, FormatJSON, FormatCSV, FormatMarkdown}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	cmdCtx := NewCommandContext(cmd)
	if opts.Format == "" {
		opts.Format = cmdCtx.Cfg.OutputFormat
	}

	client, err := cmdCtx.Connect(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	exec := cmdCtx.Executor(client, nil)

	var sqlQuery string
	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(os.Stdin):
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		return runQueryREPL(cmd, exec, opts)
	}

	return executeAndRender(cmd.Context(), cmd.OutOrStdout(), exec, sqlQuery, opts)
}

func executeAndRender(ctx context.Context, w io.Writer, exec *query.Executor, sqlQuery string, opts *QueryOptions) error {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return fmt.Errorf("query cannot be empty")
	}
	t, err := opts.target(sqlQuery)
	if err != nil {
		return err
	}

	resp, err := exec.Query(ctx, t, opts.timeRange(time.Now()), opts.Vars)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return renderResponse(w, resp, opts.Format)
}
