package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// VariablesOptions holds options for the variables command.
type VariablesOptions struct {
	Format string
	Vars   map[string]string
}

// NewVariablesCommand creates the variables command.
func NewVariablesCommand() *cobra.Command {
	opts := &VariablesOptions{}

	cmd := &cobra.Command{
		Use:   "variables SQL",
		Short: "List the options a variable query produces",
		Long: `Run a variable-value query. The result must have a _text column and may
have a _value column; without _value each option's value is its text.`,
		Example: `  sqlstream variables "SELECT DISTINCT host AS _text FROM metrics"
  sqlstream variables "SELECT name AS _text, id AS _value FROM hosts" -f json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVariables(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table or json (default: config output)")
	cmd.Flags().StringToStringVar(&opts.Vars, "var", nil, "Template variable, e.g. --var env=prod")

	return cmd
}

func runVariables(cmd *cobra.Command, sqlQuery string, opts *VariablesOptions) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	format := opts.Format
	if format == "" {
		format = cmdCtx.Cfg.OutputFormat
	}

	client, err := cmdCtx.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	values, err := cmdCtx.Executor(client, nil).FindValues(ctx, sqlQuery, opts.Vars)
	if err != nil {
		return fmt.Errorf("variable query failed: %w", err)
	}

	w := cmd.OutOrStdout()
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(values)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Text", "Value"})
	for _, v := range values {
		t.AppendRow(table.Row{v.Text, formatValue(v.Value)})
	}
	t.Render()
	return nil
}
