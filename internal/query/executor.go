// Package query runs targets against a backend client: variable
// substitution, the backend call itself, and result shaping.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/sqlstream/internal/template"
	"github.com/leapstack-labs/sqlstream/pkg/backend"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// Recorder receives the outcome of each backend call.
type Recorder interface {
	ObserveQuery(backend string, d time.Duration, err error)
}

// Config holds the executor's dependencies.
type Config struct {
	Client backend.Client
	Logger *slog.Logger

	// Tracer defaults to the global otel tracer provider.
	Tracer trace.Tracer

	// Recorder is optional.
	Recorder Recorder
}

// Executor runs targets against a single backend client.
// It is safe for concurrent use.
type Executor struct {
	client   backend.Client
	logger   *slog.Logger
	tracer   trace.Tracer
	recorder Recorder
}

// New creates an executor.
func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/leapstack-labs/sqlstream/internal/query")
	}
	return &Executor{
		client:   cfg.Client,
		logger:   logger.With("component", "query"),
		tracer:   tracer,
		recorder: cfg.Recorder,
	}
}

// Ping checks the backend is reachable.
func (e *Executor) Ping(ctx context.Context) error {
	return e.client.Ping(ctx)
}

// Query substitutes variables into t, executes it and shapes the result
// for t.Format. Hidden targets return an empty response without touching
// the backend. Backend failures are returned as *core.BackendError.
func (e *Executor) Query(ctx context.Context, t core.Target, r core.TimeRange, vars map[string]string) (*core.Response, error) {
	if t.Hide {
		return &core.Response{}, nil
	}

	t.QueryTemplated = template.Substitute(t.Query, template.Merge(template.Builtins(r, t.IntervalMs), vars))

	resp, err := e.execute(ctx, t)
	if err != nil {
		return nil, &core.BackendError{RefID: t.RefID, Err: err}
	}
	return Shape(resp, t, r)
}

// Shape applies the target's format to a raw backend response.
func Shape(resp *core.Response, t core.Target, r core.TimeRange) (*core.Response, error) {
	if t.Format != core.FormatTimeSeries || resp.Rows() == 0 {
		return resp, nil
	}
	wide := LongToWide(resp)
	if !t.GapFill.Enabled {
		return wide, nil
	}
	filled, err := GapFill(wide, r, time.Duration(t.IntervalMs)*time.Millisecond, t.GapFill)
	if err != nil {
		return nil, fmt.Errorf("gap fill %s: %w", t.RefID, err)
	}
	return filled, nil
}

func (e *Executor) execute(ctx context.Context, t core.Target) (*core.Response, error) {
	ctx, span := e.tracer.Start(ctx, "backend.execute", trace.WithAttributes(
		attribute.String("ref_id", t.RefID),
		attribute.String("backend", e.client.Name()),
		attribute.String("format", string(t.Format)),
	))
	defer span.End()

	start := time.Now()
	resp, err := e.client.Execute(ctx, core.Query{RefID: t.RefID, Text: t.QueryTemplated, Format: t.Format})
	elapsed := time.Since(start)
	if e.recorder != nil {
		e.recorder.ObserveQuery(e.client.Name(), elapsed, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Debug("backend query failed", "ref_id", t.RefID, "duration", elapsed, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", resp.Rows()))
	e.logger.Debug("backend query completed", "ref_id", t.RefID, "duration", elapsed, "rows", resp.Rows())
	return resp, nil
}

// QueryData runs every target of a non-streaming request concurrently.
// The first failure cancels the remaining targets and aborts the whole
// response.
func (e *Executor) QueryData(ctx context.Context, req core.Request) (*core.QueryDataResponse, error) {
	out := core.NewQueryDataResponse()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range req.Targets {
		g.Go(func() error {
			resp, err := e.Query(gctx, t, req.Range, req.ScopedVars)
			if err != nil {
				return err
			}
			dr := core.DataResponse{}
			if !t.Hide {
				dr.Frames = []core.DataFrame{{Name: t.RefID, RefID: t.RefID, Fields: resp.Fields}}
			}
			mu.Lock()
			out.Responses[t.RefID] = dr
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
