// Package frame provides the bounded, schema-stable row buffer that backs
// each streaming target.
//
// A Frame is registered with a schema once, then grows row by row until it
// reaches its capacity, after which every append evicts the oldest row.
// Storage is columnar: one ring per field sharing a head index. Rings grow
// with the rows appended and stop at the capacity.
//
// A Frame is not safe for concurrent use. It is owned by exactly one
// stream session; consumers only ever see Snapshot copies.
package frame

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// initialColumnCap bounds the storage reserved per column up front.
const initialColumnCap = 64

// Frame is a capacity-bounded ring buffer of rows with a fixed schema.
type Frame struct {
	refID    string
	capacity int

	schema    []core.FieldSchema
	timeIndex int
	columns   [][]any
	head      int
	size      int
}

// New creates an empty frame. A non-positive capacity falls back to
// core.DefaultCapacity.
func New(refID string, capacity int) *Frame {
	if capacity <= 0 {
		capacity = core.DefaultCapacity
	}
	return &Frame{refID: refID, capacity: capacity, timeIndex: -1}
}

// RefID returns the target the frame belongs to.
func (f *Frame) RefID() string { return f.refID }

// Capacity returns the maximum number of rows retained.
func (f *Frame) Capacity() int { return f.capacity }

// Len returns the number of rows currently held.
func (f *Frame) Len() int { return f.size }

// HasSchema reports whether RegisterSchema has succeeded.
func (f *Frame) HasSchema() bool { return f.schema != nil }

// TimeIndex returns the position of the time field, or -1 before
// registration.
func (f *Frame) TimeIndex() int { return f.timeIndex }

// Schema returns a copy of the registered schema.
func (f *Frame) Schema() []core.FieldSchema {
	return cloneSchema(f.schema)
}

// RegisterSchema fixes the frame's fields. Registering the same schema
// again is a no-op. A different schema, or one without a time field, is
// rejected with a *core.SchemaViolationError and leaves the frame as is.
func (f *Frame) RegisterSchema(fields []core.FieldSchema) error {
	if f.schema != nil {
		if !slices.EqualFunc(f.schema, fields, core.FieldSchema.Equal) {
			return &core.SchemaViolationError{
				RefID:   f.refID,
				Message: fmt.Sprintf("schema changed from %s to %s", describe(f.schema), describe(fields)),
			}
		}
		return nil
	}

	if len(fields) == 0 {
		return &core.SchemaViolationError{RefID: f.refID, Message: "no fields"}
	}
	ti := core.TimeIndex(fields)
	if ti < 0 {
		return &core.SchemaViolationError{
			RefID:   f.refID,
			Message: fmt.Sprintf("no time field in %s", describe(fields)),
		}
	}

	f.schema = cloneSchema(fields)
	f.timeIndex = ti
	f.columns = make([][]any, len(fields))
	for i := range f.columns {
		f.columns[i] = make([]any, 0, min(f.capacity, initialColumnCap))
	}
	return nil
}

// AppendRow adds one row, evicting the oldest when the frame is full.
// The row must have exactly one value per registered field.
func (f *Frame) AppendRow(values []any) error {
	if f.schema == nil {
		return &core.ValidationError{Message: fmt.Sprintf("frame %s: append before schema registration", f.refID)}
	}
	if len(values) != len(f.schema) {
		return &core.ValidationError{
			Message: fmt.Sprintf("frame %s: row has %d values, schema has %d fields", f.refID, len(values), len(f.schema)),
		}
	}

	// head stays at 0 until the frame is full, so a filling frame appends.
	if f.size < f.capacity {
		for i, v := range values {
			f.columns[i] = append(f.columns[i], v)
		}
		f.size++
		return nil
	}
	for i, v := range values {
		f.columns[i][f.head] = v
	}
	f.head = (f.head + 1) % f.capacity
	return nil
}

// AppendResponse appends rows [from, resp.Rows()) of a response whose
// schema matches the frame.
func (f *Frame) AppendResponse(resp *core.Response, from int) error {
	n := resp.Rows()
	// Rows older than the last capacity would be evicted immediately.
	from = max(from, n-f.capacity)
	for i := from; i < n; i++ {
		if err := f.AppendRow(resp.Row(i)); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a copy of the frame's contents in arrival order.
func (f *Frame) Snapshot() core.DataFrame {
	out := core.DataFrame{
		Name:   f.refID,
		RefID:  f.refID,
		Fields: make([]core.Field, len(f.schema)),
	}
	for i, s := range f.schema {
		values := make([]any, f.size)
		col := f.columns[i]
		// Copy in at most two runs: head..end, then the wrapped prefix.
		n := copy(values, col[f.head:min(f.head+f.size, len(col))])
		copy(values[n:], col[:f.size-n])
		out.Fields[i] = core.Field{FieldSchema: s.Clone(), Values: values}
	}
	return out
}

func cloneSchema(fields []core.FieldSchema) []core.FieldSchema {
	out := make([]core.FieldSchema, len(fields))
	for i, s := range fields {
		out[i] = s.Clone()
	}
	return out
}

func describe(fields []core.FieldSchema) string {
	parts := make([]string, len(fields))
	for i, s := range fields {
		parts[i] = s.Name + ":" + string(s.Type)
	}
	return fmt.Sprintf("%v", parts)
}
