package query

import (
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// IsLong reports whether resp is a long time series: a time field plus at
// least one string field whose values distinguish series.
func IsLong(resp *core.Response) bool {
	if resp.TimeIndex() < 0 {
		return false
	}
	for _, f := range resp.Fields {
		if f.Type == core.FieldTypeString {
			return true
		}
	}
	return false
}

type seriesKey struct {
	column int
	labels string
}

// LongToWide pivots a long frame into a wide one: a single time field with
// one value per distinct timestamp (ascending), then one number field per
// numeric column and distinct combination of string columns, carrying
// those strings as labels. Cells with no matching long row are nil.
// Frames that are not long are returned sorted by time but otherwise
// unchanged.
func LongToWide(resp *core.Response) *core.Response {
	ti := resp.TimeIndex()
	if ti < 0 {
		return resp
	}
	if !IsLong(resp) {
		return sortByTime(resp, ti)
	}

	var factorCols, valueCols []int
	for i, f := range resp.Fields {
		switch {
		case i == ti:
		case f.Type == core.FieldTypeString:
			factorCols = append(factorCols, i)
		case f.Type == core.FieldTypeNumber || f.Type == core.FieldTypeBool:
			valueCols = append(valueCols, i)
		}
	}

	rows := resp.Rows()
	timeSlot := make(map[int64]int)
	var times []time.Time
	var seriesOrder []seriesKey
	seriesLabels := make(map[seriesKey]map[string]string)

	type cell struct {
		key  seriesKey
		slot int64
		v    any
	}
	cells := make([]cell, 0, rows*len(valueCols))

	for r := range rows {
		ts, ok := core.TimeValue(resp.Fields[ti].Values[r])
		if !ok {
			continue
		}
		k := ts.UnixNano()
		if _, seen := timeSlot[k]; !seen {
			timeSlot[k] = len(times)
			times = append(times, ts)
		}

		labels := make(map[string]string, len(factorCols))
		parts := make([]string, len(factorCols))
		for i, c := range factorCols {
			s, _ := resp.Fields[c].Values[r].(string)
			labels[resp.Fields[c].Name] = s
			parts[i] = resp.Fields[c].Name + "=" + s
		}
		labelKey := strings.Join(parts, "\x00")

		for _, c := range valueCols {
			key := seriesKey{column: c, labels: labelKey}
			if _, seen := seriesLabels[key]; !seen {
				seriesLabels[key] = labels
				seriesOrder = append(seriesOrder, key)
			}
			cells = append(cells, cell{key: key, slot: k, v: resp.Fields[c].Values[r]})
		}
	}

	// Series are grouped by value column, then label sets in first-seen order.
	sort.SliceStable(seriesOrder, func(a, b int) bool {
		return seriesOrder[a].column < seriesOrder[b].column
	})

	order := make([]int, len(times))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return times[order[a]].Before(times[order[b]]) })
	position := make([]int, len(times))
	for pos, idx := range order {
		position[idx] = pos
	}

	out := &core.Response{Fields: make([]core.Field, 0, 1+len(seriesOrder))}
	timeField := core.Field{FieldSchema: resp.Fields[ti].FieldSchema, Values: make([]any, len(times))}
	for idx, ts := range times {
		timeField.Values[position[idx]] = ts
	}
	out.Fields = append(out.Fields, timeField)

	fieldIndex := make(map[seriesKey]int, len(seriesOrder))
	for _, key := range seriesOrder {
		src := resp.Fields[key.column]
		fieldIndex[key] = len(out.Fields)
		out.Fields = append(out.Fields, core.Field{
			FieldSchema: core.FieldSchema{
				Name:   src.Name,
				Type:   src.Type,
				Labels: maps.Clone(seriesLabels[key]),
				Config: src.Config,
			},
			Values: make([]any, len(times)),
		})
	}
	for _, c := range cells {
		out.Fields[fieldIndex[c.key]].Values[position[timeSlot[c.slot]]] = c.v
	}
	return out
}

func sortByTime(resp *core.Response, ti int) *core.Response {
	rows := resp.Rows()
	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}
	key := func(i int) time.Time {
		ts, _ := core.TimeValue(resp.Fields[ti].Values[i])
		return ts
	}
	if slices.IsSortedFunc(order, func(a, b int) int { return key(a).Compare(key(b)) }) {
		return resp
	}
	sort.SliceStable(order, func(a, b int) bool { return key(order[a]).Before(key(order[b])) })

	out := &core.Response{Fields: make([]core.Field, len(resp.Fields))}
	for i, f := range resp.Fields {
		values := make([]any, rows)
		for pos, r := range order {
			values[pos] = f.Values[r]
		}
		out.Fields[i] = core.Field{FieldSchema: f.FieldSchema, Values: values}
	}
	return out
}
