package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// Output formats.
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// renderResponse writes resp in the given output format.
func renderResponse(w io.Writer, resp *core.Response, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, resp)
	case FormatCSV:
		return renderCSV(w, resp)
	case FormatMarkdown, "md":
		return renderMarkdown(w, resp)
	default:
		return renderTable(w, resp, 0)
	}
}

func header(resp *core.Response) table.Row {
	row := make(table.Row, len(resp.Fields))
	for i, f := range resp.Fields {
		row[i] = columnName(f)
	}
	return row
}

// columnName shows a field's labels next to its name, as in a wide
// time series.
func columnName(f core.Field) string {
	if len(f.Labels) == 0 {
		return f.Name
	}
	parts := make([]string, 0, len(f.Labels))
	for _, k := range slices.Sorted(maps.Keys(f.Labels)) {
		parts = append(parts, k+"="+f.Labels[k])
	}
	return f.Name + " {" + strings.Join(parts, ", ") + "}"
}

func newTable(w io.Writer, resp *core.Response) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header(resp))
	return t
}

// renderTable draws resp as a table. When tail is positive only the last
// tail rows are drawn.
func renderTable(w io.Writer, resp *core.Response, tail int) error {
	rows := resp.Rows()
	if rows == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	start := 0
	if tail > 0 && rows > tail {
		start = rows - tail
	}

	t := newTable(w, resp)
	for i := start; i < rows; i++ {
		t.AppendRow(tableRow(resp.Row(i)))
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", rows)
	return nil
}

func tableRow(values []any) table.Row {
	row := make(table.Row, len(values))
	for i, v := range values {
		row[i] = formatValue(v)
	}
	return row
}

func renderJSON(w io.Writer, resp *core.Response) error {
	results := make([]map[string]any, resp.Rows())
	for i := range results {
		row := make(map[string]any, len(resp.Fields))
		for j, v := range resp.Row(i) {
			row[columnName(resp.Fields[j])] = v
		}
		results[i] = row
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func renderCSV(w io.Writer, resp *core.Response) error {
	cw := csv.NewWriter(w)
	names := make([]string, len(resp.Fields))
	for i, f := range resp.Fields {
		names[i] = columnName(f)
	}
	if err := cw.Write(names); err != nil {
		return err
	}
	for i := range resp.Rows() {
		values := resp.Row(i)
		record := make([]string, len(values))
		for j, v := range values {
			record[j] = formatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func renderMarkdown(w io.Writer, resp *core.Response) error {
	if resp.Rows() == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}
	t := newTable(w, resp)
	for i := range resp.Rows() {
		t.AppendRow(tableRow(resp.Row(i)))
	}
	t.RenderMarkdown()
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
