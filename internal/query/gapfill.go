package query

import (
	"fmt"
	"sort"
	"time"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// maxFillBuckets bounds the rows a single gap fill may generate.
const maxFillBuckets = 100_000

// GapFill returns resp with one row per interval bucket between r.From and
// r.To. Bucket boundaries are aligned to the interval. A bucket holding a
// real row keeps that row; empty buckets are filled according to cfg.Mode.
// Responses without a time field, a zero range, or a non-positive interval
// are returned unchanged.
func GapFill(resp *core.Response, r core.TimeRange, interval time.Duration, cfg core.GapFill) (*core.Response, error) {
	ti := resp.TimeIndex()
	if ti < 0 || r.IsZero() || interval <= 0 {
		return resp, nil
	}

	from := r.From.UTC().Truncate(interval)
	to := r.To.UTC()
	if n := to.Sub(from) / interval; n > maxFillBuckets {
		return nil, &core.ValidationError{
			Message: fmt.Sprintf("gap fill would generate %d buckets (limit %d); raise intervalMs", n, maxFillBuckets),
		}
	}

	buckets := make(map[int64][]any)
	for ts := from; ts.Before(to); ts = ts.Add(interval) {
		buckets[ts.UnixNano()] = nil
	}
	for i := range resp.Rows() {
		ts, ok := core.TimeValue(resp.Fields[ti].Values[i])
		if !ok {
			continue
		}
		buckets[ts.UTC().Truncate(interval).UnixNano()] = resp.Row(i)
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })

	out := &core.Response{Fields: make([]core.Field, len(resp.Fields))}
	for i, f := range resp.Fields {
		out.Fields[i] = core.Field{FieldSchema: f.FieldSchema, Values: make([]any, 0, len(keys))}
	}

	var previous []any
	for _, k := range keys {
		row := buckets[k]
		if row == nil {
			row = fillRow(resp, ti, time.Unix(0, k).UTC(), cfg, previous)
		} else {
			previous = row
		}
		for i, v := range row {
			out.Fields[i].Values = append(out.Fields[i].Values, v)
		}
	}
	return out, nil
}

func fillRow(resp *core.Response, ti int, ts time.Time, cfg core.GapFill, previous []any) []any {
	row := make([]any, len(resp.Fields))
	for i, f := range resp.Fields {
		if i == ti {
			row[i] = ts
			continue
		}
		switch cfg.Mode {
		case core.GapFillPrevious:
			if previous != nil {
				row[i] = previous[i]
			}
		case core.GapFillZero:
			if f.Type == core.FieldTypeNumber {
				row[i] = 0.0
			}
		case core.GapFillStatic:
			if f.Type == core.FieldTypeNumber {
				row[i] = cfg.Value
			}
		}
	}
	return row
}
