package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlstream/internal/testutil"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

func field(name string, typ core.FieldType, values ...any) core.Field {
	return core.Field{FieldSchema: core.FieldSchema{Name: name, Type: typ}, Values: values}
}

func TestLongToWide(t *testing.T) {
	s := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Second) }
	long := &core.Response{Fields: []core.Field{
		field("time", core.FieldTypeTime, s(1), s(0), s(1), s(0)),
		field("host", core.FieldTypeString, "a", "b", "b", "a"),
		field("region", core.FieldTypeString, "eu", "us", "us", "eu"),
		field("cpu", core.FieldTypeNumber, 10.0, 20.0, 21.0, 11.0),
		field("mem", core.FieldTypeNumber, 1.0, 2.0, 3.0, 4.0),
	}}
	require.True(t, IsLong(long))

	wide := LongToWide(long)
	require.Len(t, wide.Fields, 5)

	assert.Equal(t, []any{s(0), s(1)}, wide.Fields[0].Values)

	assert.Equal(t, "cpu", wide.Fields[1].Name)
	assert.Equal(t, map[string]string{"host": "a", "region": "eu"}, wide.Fields[1].Labels)
	assert.Equal(t, []any{11.0, 10.0}, wide.Fields[1].Values)

	assert.Equal(t, "cpu", wide.Fields[2].Name)
	assert.Equal(t, map[string]string{"host": "b", "region": "us"}, wide.Fields[2].Labels)
	assert.Equal(t, []any{20.0, 21.0}, wide.Fields[2].Values)

	assert.Equal(t, "mem", wide.Fields[3].Name)
	assert.Equal(t, []any{4.0, 1.0}, wide.Fields[3].Values)
	assert.Equal(t, "mem", wide.Fields[4].Name)
	assert.Equal(t, []any{2.0, 3.0}, wide.Fields[4].Values)
}

func TestLongToWideMissingCells(t *testing.T) {
	long := &core.Response{Fields: []core.Field{
		field("time", core.FieldTypeTime, t0, t0.Add(time.Second)),
		field("host", core.FieldTypeString, "a", "b"),
		field("cpu", core.FieldTypeNumber, 1.0, 2.0),
	}}
	wide := LongToWide(long)
	require.Len(t, wide.Fields, 3)
	assert.Equal(t, []any{1.0, nil}, wide.Fields[1].Values)
	assert.Equal(t, []any{nil, 2.0}, wide.Fields[2].Values)
}

func TestLongToWideLeavesWideFrames(t *testing.T) {
	wide := testutil.Series(t0, time.Second, 1, 2, 3)
	assert.False(t, IsLong(wide))
	assert.Same(t, wide, LongToWide(wide))

	unsorted := &core.Response{Fields: []core.Field{
		field("time", core.FieldTypeTime, t0.Add(time.Second), t0),
		field("v", core.FieldTypeNumber, 2.0, 1.0),
	}}
	sorted := LongToWide(unsorted)
	assert.Equal(t, []any{t0, t0.Add(time.Second)}, sorted.Fields[0].Values)
	assert.Equal(t, []any{1.0, 2.0}, sorted.Fields[1].Values)

	noTime := testutil.Table([]string{"a"}, []string{"x"})
	assert.Same(t, noTime, LongToWide(noTime))
}

func TestGapFill(t *testing.T) {
	s := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Minute) }
	resp := &core.Response{Fields: []core.Field{
		field("time", core.FieldTypeTime, s(0), s(3)),
		field("v", core.FieldTypeNumber, 1.0, 4.0),
		field("note", core.FieldTypeString, "x", "y"),
	}}
	r := core.TimeRange{From: s(0), To: s(5)}

	tests := []struct {
		mode      core.GapFillMode
		value     float64
		wantV     []any
		wantNotes []any
	}{
		{mode: core.GapFillNull, wantV: []any{1.0, nil, nil, 4.0, nil}, wantNotes: []any{"x", nil, nil, "y", nil}},
		{mode: core.GapFillZero, wantV: []any{1.0, 0.0, 0.0, 4.0, 0.0}, wantNotes: []any{"x", nil, nil, "y", nil}},
		{mode: core.GapFillStatic, value: 7, wantV: []any{1.0, 7.0, 7.0, 4.0, 7.0}, wantNotes: []any{"x", nil, nil, "y", nil}},
		{mode: core.GapFillPrevious, wantV: []any{1.0, 1.0, 1.0, 4.0, 4.0}, wantNotes: []any{"x", "x", "x", "y", "y"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			out, err := GapFill(resp, r, time.Minute, core.GapFill{Enabled: true, Mode: tt.mode, Value: tt.value})
			require.NoError(t, err)
			assert.Equal(t, []any{s(0), s(1), s(2), s(3), s(4)}, out.Fields[0].Values)
			assert.Equal(t, tt.wantV, out.Fields[1].Values)
			assert.Equal(t, tt.wantNotes, out.Fields[2].Values)
		})
	}
}

func TestGapFillRealRowKeepsItsTime(t *testing.T) {
	off := t0.Add(90 * time.Second)
	resp := &core.Response{Fields: []core.Field{
		field("time", core.FieldTypeTime, off),
		field("v", core.FieldTypeNumber, 5.0),
	}}
	out, err := GapFill(resp, core.TimeRange{From: t0, To: t0.Add(2 * time.Minute)}, time.Minute, core.GapFill{Mode: core.GapFillNull})
	require.NoError(t, err)
	assert.Equal(t, []any{t0, off}, out.Fields[0].Values)
	assert.Equal(t, []any{nil, 5.0}, out.Fields[1].Values)
}

func TestGapFillNoop(t *testing.T) {
	resp := testutil.Series(t0, time.Second, 1)
	out, err := GapFill(resp, core.TimeRange{}, time.Second, core.GapFill{})
	require.NoError(t, err)
	assert.Same(t, resp, out)

	out, err = GapFill(resp, core.TimeRange{From: t0, To: t0.Add(time.Hour)}, 0, core.GapFill{})
	require.NoError(t, err)
	assert.Same(t, resp, out)
}

func TestGapFillBucketLimit(t *testing.T) {
	resp := testutil.Series(t0, time.Second, 1)
	_, err := GapFill(resp, core.TimeRange{From: t0, To: t0.Add(365 * 24 * time.Hour)}, time.Second, core.GapFill{Mode: core.GapFillNull})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
}
