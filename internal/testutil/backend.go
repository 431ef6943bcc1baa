package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// ExecuteFunc answers one backend call.
type ExecuteFunc func(ctx context.Context, q core.Query) (*core.Response, error)

// FakeClient is an in-memory backend.Client that records every call.
type FakeClient struct {
	mu      sync.Mutex
	execute ExecuteFunc
	calls   []core.Query
	PingErr error
}

// NewFakeClient returns a client answering every Execute with fn.
func NewFakeClient(fn ExecuteFunc) *FakeClient {
	return &FakeClient{execute: fn}
}

// Connect implements backend.Client.
func (f *FakeClient) Connect(context.Context, core.BackendConfig) error { return nil }

// Close implements backend.Client.
func (f *FakeClient) Close() error { return nil }

// Name implements backend.Client.
func (f *FakeClient) Name() string { return "fake" }

// Ping implements backend.Client.
func (f *FakeClient) Ping(context.Context) error { return f.PingErr }

// Execute records q and delegates to the configured function.
func (f *FakeClient) Execute(ctx context.Context, q core.Query) (*core.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	fn := f.execute
	f.mu.Unlock()
	return fn(ctx, q)
}

// Calls returns a copy of the queries received so far.
func (f *FakeClient) Calls() []core.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Query(nil), f.calls...)
}

// CallCount returns the number of Execute calls.
func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var _ backend.Client = (*FakeClient)(nil)

// Series builds a time/value response with one row per value, starting at
// start and spaced by step.
func Series(start time.Time, step time.Duration, values ...float64) *core.Response {
	times := make([]any, len(values))
	vals := make([]any, len(values))
	for i, v := range values {
		times[i] = start.Add(time.Duration(i) * step)
		vals[i] = v
	}
	return &core.Response{Fields: []core.Field{
		{FieldSchema: core.FieldSchema{Name: "time", Type: core.FieldTypeTime}, Values: times},
		{FieldSchema: core.FieldSchema{Name: "value", Type: core.FieldTypeNumber}, Values: vals},
	}}
}

// Table builds a response of string columns.
func Table(names []string, rows ...[]string) *core.Response {
	resp := &core.Response{Fields: make([]core.Field, len(names))}
	for i, n := range names {
		values := make([]any, len(rows))
		for r, row := range rows {
			values[r] = row[i]
		}
		resp.Fields[i] = core.Field{
			FieldSchema: core.FieldSchema{Name: n, Type: core.FieldTypeString},
			Values:      values,
		}
	}
	return resp
}
