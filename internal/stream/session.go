// Package stream turns one-shot backend queries into live feeds: one
// polling session per target, a dispatcher that validates and fans out
// requests, and a merged feed that relays every session's updates.
package stream

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/leapstack-labs/sqlstream/pkg/core"
	"github.com/leapstack-labs/sqlstream/pkg/frame"
)

// DefaultQueryTimeout bounds a single backend call made by a session.
const DefaultQueryTimeout = 30 * time.Second

// Querier runs one target. *query.Executor satisfies it.
type Querier interface {
	Query(ctx context.Context, t core.Target, r core.TimeRange, vars map[string]string) (*core.Response, error)
}

// SessionConfig holds the settings shared by every session of a request.
type SessionConfig struct {
	Clock        clock.Clock
	Logger       *slog.Logger
	Observer     Observer
	QueryTimeout time.Duration
	// MaxCapacity caps the frame capacity a request may ask for. Only the
	// dispatcher reads it; zero means core.DefaultMaxCapacity.
	MaxCapacity int

	// Range is slid forward to the current time on every tick.
	Range core.TimeRange
	Vars  map[string]string
}

type tickResult struct {
	resp    *core.Response
	err     error
	elapsed time.Duration
}

// Session polls one target on its own timer and owns that target's frame.
//
// The first tick runs immediately and seeds the frame with every row of
// the response. Later ticks append only the newest row. A tick that fires
// while the previous backend call is still running is skipped and
// republishes the current frame instead.
type Session struct {
	info     SessionInfo
	target   core.Target
	querier  Querier
	frame    *frame.Frame
	clock    clock.Clock
	logger   *slog.Logger
	observer Observer
	timeout  time.Duration
	rng      core.TimeRange
	vars     map[string]string

	state    atomic.Int32
	inFlight atomic.Bool
	started  atomic.Bool
}

// NewSession creates an idle session for t. The frame is bounded by
// capacity rows.
func NewSession(t core.Target, capacity int, q Querier, cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}

	f := frame.New(t.RefID, capacity)
	info := SessionInfo{
		ID:       uuid.NewString(),
		RefID:    t.RefID,
		Query:    t.Query,
		Interval: t.Interval(),
		Capacity: f.Capacity(),
	}
	return &Session{
		info:     info,
		target:   t,
		querier:  q,
		frame:    f,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "stream", "ref_id", t.RefID, "session_id", info.ID),
		observer: cfg.Observer,
		timeout:  cfg.QueryTimeout,
		rng:      cfg.Range,
		vars:     cfg.Vars,
	}
}

// Info returns the session's identity.
func (s *Session) Info() SessionInfo { return s.info }

// RefID returns the target's refId.
func (s *Session) RefID() string { return s.info.RefID }

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run drives the session until ctx is cancelled, passing every update to
// emit from the calling goroutine. A session runs at most once; later calls
// return immediately.
//
// A backend call still running when ctx is cancelled is not aborted; its
// result is discarded.
func (s *Session) Run(ctx context.Context, emit func(core.Update)) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	s.setState(StateSeeding)
	s.observer.SessionStarted(s.info)
	s.logger.Debug("session started", "interval", s.info.Interval, "capacity", s.info.Capacity)

	// The seed query starts at once; the timer paces every later tick.
	results := make(chan tickResult, 1)
	s.inFlight.Store(true)
	go s.call(ctx, results)
	timer := s.clock.NewTimer(s.info.Interval)

	defer func() {
		timer.Stop()
		s.setState(StateStopped)
		s.observer.SessionStopped(s.info)
		s.logger.Debug("session stopped", "rows", s.frame.Len())
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.Chan():
			timer.Reset(s.info.Interval)
			if !s.inFlight.CompareAndSwap(false, true) {
				s.logger.Debug("tick skipped, previous query still running")
				s.observer.TickSkipped(s.info)
				// Subscribers still see the frame once it has a schema.
				if s.frame.HasSchema() {
					snap := s.frame.Snapshot()
					emit(core.Update{Key: s.info.RefID, State: core.StateStreaming, Frame: &snap})
				}
				continue
			}
			go s.call(ctx, results)

		case res := <-results:
			s.inFlight.Store(false)
			if ctx.Err() != nil {
				return
			}
			for _, u := range s.apply(res) {
				emit(u)
			}
		}
	}
}

// call runs one backend query detached from the session's cancellation.
func (s *Session) call(ctx context.Context, out chan<- tickResult) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := s.clock.Now()
	resp, err := s.querier.Query(callCtx, s.target, s.rng.SlideTo(start), s.vars)
	out <- tickResult{resp: resp, err: err, elapsed: s.clock.Now().Sub(start)}
}

// apply folds one backend result into the frame and returns the updates
// to publish: an error event when the tick failed, then a snapshot.
func (s *Session) apply(res tickResult) []core.Update {
	state := s.State()
	err := res.err
	if err == nil {
		switch state {
		case StateSeeding:
			err = s.seed(res.resp)
		case StatePolling:
			err = s.poll(res.resp)
		}
	}
	s.observer.TickCompleted(s.info, state, s.frame.Len(), err)

	updates := make([]core.Update, 0, 2)
	if err != nil {
		s.logger.Warn("tick failed", "state", state, "error", err)
		updates = append(updates, core.Update{Key: s.info.RefID, State: core.StateStreaming, Err: err})
	} else {
		s.logger.Debug("tick completed", "state", state, "rows", s.frame.Len(), "elapsed", res.elapsed)
	}

	snap := s.frame.Snapshot()
	updates = append(updates, core.Update{Key: s.info.RefID, State: core.StateStreaming, Frame: &snap})
	return updates
}

// seed registers the schema and appends every row. On failure the session
// stays in seeding and the next tick retries.
func (s *Session) seed(resp *core.Response) error {
	if err := s.frame.RegisterSchema(resp.Schema()); err != nil {
		return err
	}
	if err := s.frame.AppendResponse(resp, 0); err != nil {
		return err
	}
	s.setState(StatePolling)
	return nil
}

// poll checks the schema is unchanged and appends the newest row.
func (s *Session) poll(resp *core.Response) error {
	if err := s.frame.RegisterSchema(resp.Schema()); err != nil {
		return err
	}
	n := resp.Rows()
	if n == 0 {
		return nil
	}
	return s.frame.AppendRow(resp.Row(n - 1))
}
