package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// Executor runs targets for the dispatcher. *query.Executor satisfies it.
type Executor interface {
	Querier
	QueryData(ctx context.Context, req core.Request) (*core.QueryDataResponse, error)
}

// Result is the outcome of a dispatch: exactly one of Response and Feed
// is set.
type Result struct {
	Response *core.QueryDataResponse
	Feed     *Feed
}

// Streaming reports whether the result is a live feed.
func (r *Result) Streaming() bool {
	return r.Feed != nil
}

// Dispatcher routes a request to the synchronous path or to a set of
// stream sessions.
type Dispatcher struct {
	exec   Executor
	cfg    SessionConfig
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. cfg supplies the clock, logger,
// observer and timeout shared by every session it starts; its Range and
// Vars are taken from each request instead.
func NewDispatcher(exec Executor, cfg SessionConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg.Logger = logger
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = core.DefaultMaxCapacity
	}
	return &Dispatcher{exec: exec, cfg: cfg, logger: logger.With("component", "dispatcher")}
}

// Dispatch validates that req is homogeneous and runs it.
//
// A request mixing streaming and non-streaming targets fails with a
// *core.ValidationError before any backend call. An all non-streaming
// request runs once and returns its response. An all-streaming request
// asking for more than MaxCapacity rows per frame is rejected. Otherwise it
// starts one session per visible target, merged into a feed that lives
// until ctx is cancelled or the feed is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, req core.Request) (*Result, error) {
	total := len(req.Targets)
	streaming := req.StreamingCount()

	switch {
	case total == 0:
		return &Result{Response: core.NewQueryDataResponse()}, nil

	case streaming > 0 && streaming < total:
		return nil, &core.ValidationError{
			Message:   "streaming and non-streaming targets cannot be mixed in one request",
			Total:     total,
			Streaming: streaming,
		}

	case streaming == 0:
		resp, err := d.exec.QueryData(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Result{Response: resp}, nil
	}

	if err := validateRefIDs(req.Targets); err != nil {
		return nil, err
	}
	if c := req.Capacity(); c > d.cfg.MaxCapacity {
		return nil, &core.ValidationError{
			Message: fmt.Sprintf("maxDataPoints %d exceeds the limit of %d", c, d.cfg.MaxCapacity),
		}
	}

	cfg := d.cfg
	cfg.Range = req.Range
	cfg.Vars = req.ScopedVars

	sessions := make([]*Session, 0, total)
	for _, t := range req.Targets {
		if t.Hide {
			continue
		}
		sessions = append(sessions, NewSession(t, req.Capacity(), d.exec, cfg))
	}
	d.logger.Info("starting stream", "targets", total, "sessions", len(sessions), "capacity", req.Capacity())
	return &Result{Feed: Merge(ctx, sessions...)}, nil
}

// validateRefIDs rejects duplicate or empty refIds, which would make the
// merged feed's keys ambiguous.
func validateRefIDs(targets []core.Target) error {
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t.RefID == "" {
			return &core.ValidationError{Message: "streaming target without refId"}
		}
		if seen[t.RefID] {
			return &core.ValidationError{Message: fmt.Sprintf("duplicate refId %q", t.RefID)}
		}
		seen[t.RefID] = true
	}
	return nil
}
