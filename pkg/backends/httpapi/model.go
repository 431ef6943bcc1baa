package httpapi

import (
	"github.com/leapstack-labs/sqlstream/pkg/backend"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// The wire format is the one served by sqlstream's own /api/query, so one
// instance can front another.
type queryPayload struct {
	Targets []queryBody `json:"targets"`
}

type queryBody struct {
	RefID  string      `json:"refId"`
	Query  string      `json:"queryString"`
	Format core.Format `json:"format"`
}

type queryResult struct {
	Results map[string]refResult `json:"results"`
}

type refResult struct {
	Frames []remoteFrame `json:"frames"`
	Error  string        `json:"error,omitempty"`
}

type remoteFrame struct {
	Fields []remoteField `json:"fields"`
}

type remoteField struct {
	Name   string            `json:"name"`
	Type   core.FieldType    `json:"type"`
	Labels map[string]string `json:"labels,omitempty"`
	Values []any             `json:"values"`
}

// toResponse converts JSON values to the engine's value types. JSON times
// arrive as RFC 3339 strings or epoch milliseconds.
// Only the first frame is used.
func (r refResult) toResponse() *core.Response {
	if len(r.Frames) == 0 {
		return &core.Response{}
	}
	fields := r.Frames[0].Fields
	resp := &core.Response{Fields: make([]core.Field, len(fields))}
	for i, f := range fields {
		ft := f.Type
		if ft == "" {
			ft = backend.InferFieldType(f.Values)
		}
		values := make([]any, len(f.Values))
		for j, v := range f.Values {
			if n, ok := v.(float64); ok && ft == core.FieldTypeTime {
				v = int64(n)
			}
			values[j] = backend.ConvertValue(v, ft)
		}
		resp.Fields[i] = core.Field{
			FieldSchema: core.FieldSchema{Name: f.Name, Type: ft, Labels: f.Labels},
			Values:      values,
		}
	}
	return resp
}
