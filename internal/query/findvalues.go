package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// Column names recognised in variable-value query results.
const (
	TextColumn  = "_text"
	ValueColumn = "_value"
	VarRefID    = "Var"
)

// FindValues runs text as a one-off table query and turns its rows into
// variable options. The result must have a _text column and may have a
// _value column; when _value is absent each value equals its text.
// Empty text yields no values and no backend call.
func (e *Executor) FindValues(ctx context.Context, text string, vars map[string]string) ([]core.MetricFindValue, error) {
	if strings.TrimSpace(text) == "" {
		return []core.MetricFindValue{}, nil
	}

	resp, err := e.Query(ctx, core.Target{RefID: VarRefID, Query: text, Format: core.FormatTable}, core.TimeRange{}, vars)
	if err != nil {
		return nil, err
	}
	return MetricFindValues(resp)
}

// MetricFindValues converts a response into variable options, validating
// its columns.
func MetricFindValues(resp *core.Response) ([]core.MetricFindValue, error) {
	if len(resp.Fields) > 2 {
		names := make([]string, len(resp.Fields))
		for i, f := range resp.Fields {
			names[i] = f.Name
		}
		return nil, &core.ValidationError{
			Message: fmt.Sprintf("variable query must return at most 2 columns (%s, %s), got %d: %s",
				TextColumn, ValueColumn, len(resp.Fields), strings.Join(names, ", ")),
		}
	}

	textField, ok := resp.Field(TextColumn)
	if !ok {
		return nil, &core.ValidationError{
			Message: fmt.Sprintf("variable query result is missing the %s column", TextColumn),
		}
	}
	valueField, hasValue := resp.Field(ValueColumn)

	rows := resp.Rows()
	out := make([]core.MetricFindValue, rows)
	for i := range rows {
		text := toText(textField.Values[i])
		var value any = text
		if hasValue {
			value = valueField.Values[i]
		}
		out[i] = core.MetricFindValue{Text: text, Value: value}
	}
	return out, nil
}

func toText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}
