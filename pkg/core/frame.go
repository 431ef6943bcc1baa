package core

import (
	"maps"
	"slices"
	"time"
)

// FieldType is the semantic type of a column.
type FieldType string

// Field types.
const (
	FieldTypeTime   FieldType = "time"
	FieldTypeNumber FieldType = "number"
	FieldTypeString FieldType = "string"
	FieldTypeBool   FieldType = "bool"
)

// FieldConfig carries display hints for a field.
type FieldConfig struct {
	DisplayName string `json:"displayName,omitempty"`
	Unit        string `json:"unit,omitempty"`
}

// FieldSchema describes one column of a frame.
type FieldSchema struct {
	Name   string            `json:"name"`
	Type   FieldType         `json:"type"`
	Labels map[string]string `json:"labels,omitempty"`
	Config *FieldConfig      `json:"config,omitempty"`
}

// Equal reports whether two schemas describe the same column.
// Display config is not part of the identity.
func (s FieldSchema) Equal(o FieldSchema) bool {
	return s.Name == o.Name && s.Type == o.Type && maps.Equal(s.Labels, o.Labels)
}

// Clone returns a copy of s that shares no labels or config with it.
func (s FieldSchema) Clone() FieldSchema {
	s.Labels = maps.Clone(s.Labels)
	if s.Config != nil {
		c := *s.Config
		s.Config = &c
	}
	return s
}

// Field is a column with its values. Values hold time.Time for time
// fields, float64 for number fields, string and bool otherwise; nil marks
// a missing value.
type Field struct {
	FieldSchema
	Values []any `json:"values"`
}

// NewField returns an empty field with the given schema.
func NewField(name string, typ FieldType, labels map[string]string) Field {
	return Field{FieldSchema: FieldSchema{Name: name, Type: typ, Labels: labels}}
}

// Len returns the number of values in the field.
func (f Field) Len() int {
	return len(f.Values)
}

// Response is the typed result of a single backend call.
type Response struct {
	Fields []Field `json:"fields"`
}

// Rows returns the row count. Fields are expected to be equally long; the
// shortest one wins otherwise.
func (r *Response) Rows() int {
	if r == nil || len(r.Fields) == 0 {
		return 0
	}
	n := r.Fields[0].Len()
	for _, f := range r.Fields[1:] {
		n = min(n, f.Len())
	}
	return n
}

// Schema returns the field schemas in order.
func (r *Response) Schema() []FieldSchema {
	if r == nil {
		return nil
	}
	out := make([]FieldSchema, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.FieldSchema
	}
	return out
}

// Row returns row i as a slice of values in field order.
func (r *Response) Row(i int) []any {
	row := make([]any, len(r.Fields))
	for j, f := range r.Fields {
		row[j] = f.Values[i]
	}
	return row
}

// TimeIndex returns the index of the first time-typed field, or -1.
func (r *Response) TimeIndex() int {
	if r == nil {
		return -1
	}
	return TimeIndex(r.Schema())
}

// Field returns the field with the given name.
func (r *Response) Field(name string) (Field, bool) {
	if r == nil {
		return Field{}, false
	}
	i := slices.IndexFunc(r.Fields, func(f Field) bool { return f.Name == name })
	if i < 0 {
		return Field{}, false
	}
	return r.Fields[i], true
}

// TimeIndex returns the index of the first time-typed schema, or -1.
func TimeIndex(schema []FieldSchema) int {
	return slices.IndexFunc(schema, func(s FieldSchema) bool { return s.Type == FieldTypeTime })
}

// DataFrame is the published shape of one target's result.
type DataFrame struct {
	Name   string  `json:"name"`
	RefID  string  `json:"refId"`
	Fields []Field `json:"fields"`
}

// Rows returns the number of rows in the frame.
func (d DataFrame) Rows() int {
	return (&Response{Fields: d.Fields}).Rows()
}

// TimeValue returns v as a time when it holds one.
func TimeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	}
	return time.Time{}, false
}
