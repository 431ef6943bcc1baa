package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/leapstack-labs/sqlstream/internal/testutil"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	interval = 5 * time.Second
	waitFor  = 2 * time.Second
)

type querierFunc func(ctx context.Context, t core.Target, r core.TimeRange, vars map[string]string) (*core.Response, error)

func (f querierFunc) Query(ctx context.Context, t core.Target, r core.TimeRange, vars map[string]string) (*core.Response, error) {
	return f(ctx, t, r, vars)
}

// countUp returns 1..n as floats.
func countUp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

type recordingObserver struct {
	mu      sync.Mutex
	started []string
	stopped []string
	ticks   int
	skipped chan string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{skipped: make(chan string, 10)}
}

func (o *recordingObserver) SessionStarted(info SessionInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, info.RefID)
}

func (o *recordingObserver) TickCompleted(SessionInfo, State, int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks++
}

func (o *recordingObserver) TickSkipped(info SessionInfo) {
	o.skipped <- info.RefID
}

func (o *recordingObserver) SessionStopped(info SessionInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = append(o.stopped, info.RefID)
}

type runningSession struct {
	updates chan core.Update
	cancel  context.CancelFunc
	done    chan struct{}
}

func start(s *Session) *runningSession {
	ctx, cancel := context.WithCancel(context.Background())
	rs := &runningSession{updates: make(chan core.Update, 16), cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(rs.done)
		s.Run(ctx, func(u core.Update) { rs.updates <- u })
	}()
	return rs
}

func (rs *runningSession) stop(t *testing.T) {
	t.Helper()
	rs.cancel()
	select {
	case <-rs.done:
	case <-time.After(waitFor):
		t.Fatal("session did not stop")
	}
}

func receive(t *testing.T, ch <-chan core.Update) core.Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "channel closed")
		return u
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for update")
		return core.Update{}
	}
}

func frameValues(t *testing.T, u core.Update) []any {
	t.Helper()
	require.NotNil(t, u.Frame)
	require.Len(t, u.Frame.Fields, 2)
	return u.Frame.Fields[1].Values
}

func TestSessionSeedsThenAppendsLatest(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(t0)
	var calls atomic.Int32
	q := querierFunc(func(context.Context, core.Target, core.TimeRange, map[string]string) (*core.Response, error) {
		n := int(calls.Add(1))
		return testutil.Series(t0, time.Second, countUp(n+4)...), nil
	})
	s := NewSession(core.Target{RefID: "A", StreamingInterval: 5}, 100, q, SessionConfig{Clock: clk, Logger: testutil.NewTestLogger(t)})
	assert.Equal(t, StateIdle, s.State())

	rs := start(s)

	u := receive(t, rs.updates)
	assert.Equal(t, "A", u.Key)
	assert.Equal(t, core.StateStreaming, u.State)
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0}, frameValues(t, u))
	assert.Equal(t, StatePolling, s.State())

	require.NoError(t, clk.WaitAdvance(interval, waitFor, 1))
	u = receive(t, rs.updates)
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0}, frameValues(t, u))

	require.NoError(t, clk.WaitAdvance(interval, waitFor, 1))
	u = receive(t, rs.updates)
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0}, frameValues(t, u))

	rs.stop(t)
	assert.Equal(t, StateStopped, s.State())
	assert.EqualValues(t, 3, calls.Load())
}

func TestSessionCapacityBound(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(t0)
	var calls atomic.Int32
	q := querierFunc(func(context.Context, core.Target, core.TimeRange, map[string]string) (*core.Response, error) {
		n := int(calls.Add(1))
		return testutil.Series(t0, time.Second, countUp(n+4)...), nil
	})
	s := NewSession(core.Target{RefID: "A", StreamingInterval: 5}, 3, q, SessionConfig{Clock: clk})
	rs := start(s)
	defer rs.stop(t)

	assert.Equal(t, []any{3.0, 4.0, 5.0}, frameValues(t, receive(t, rs.updates)))
	require.NoError(t, clk.WaitAdvance(interval, waitFor, 1))
	assert.Equal(t, []any{4.0, 5.0, 6.0}, frameValues(t, receive(t, rs.updates)))
}

func TestSessionSkipsTickWhileQueryInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(t0)
	release := make(chan struct{})
	var calls atomic.Int32
	q := querierFunc(func(context.Context, core.Target, core.TimeRange, map[string]string) (*core.Response, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		return testutil.Series(t0, time.Second, 1), nil
	})
	obs := newRecordingObserver()
	s := NewSession(core.Target{RefID: "A", StreamingInterval: 5}, 10, q, SessionConfig{Clock: clk, Observer: obs})
	rs := start(s)
	defer rs.stop(t)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, time.Millisecond)
	require.NoError(t, clk.WaitAdvance(interval, waitFor, 1))

	select {
	case refID := <-obs.skipped:
		assert.Equal(t, "A", refID)
	case <-time.After(waitFor):
		t.Fatal("expected a skipped tick")
	}
	assert.EqualValues(t, 1, calls.Load())

	close(release)
	assert.Equal(t, []any{1.0}, frameValues(t, receive(t, rs.updates)))

	require.NoError(t, clk.WaitAdvance(interval, waitFor, 1))
	receive(t, rs.updates)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSessionSkippedTickRepublishesFrame(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(t0)
	release := make(chan struct{})
	var calls atomic.Int32
	q := querierFunc(func(context.Context, core.Target, core.TimeRange, map[string]string) (*core.Response, error) {
		switch calls.Add(1) {
		case 1:
			return testutil.Series(t0, time.Second, 1, 2), nil
		case 2:
			<-release
		}
		return testutil.Series(t0, time.Second, 1, 2, 3), nil
	})
	obs := newRecordingObserver()
	s := NewSession(core.Target{RefID: "A", StreamingInterval: 5}, 10, q, SessionConfig{Clock: clk, Observer: obs})
	rs := start(s)
	defer rs.stop(t)

	assert.Equal(t, []any{1.0, 2.0}, frameValues(t, receive(t, rs.updates)))

	require.NoError(t, clk.WaitAdvance(interval, waitFor, 1))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, waitFor, time.Millisecond)
	require.NoError(t, clk.WaitAdvance(interval, waitFor, 1))

	u := receive(t, rs.updates)
	assert.Equal(t, "A", u.Key)
	assert.Equal(t, core.StateStreaming, u.State)
	assert.False(t, u.IsError())
	assert.Equal(t, []any{1.0, 2.0}, frameValues(t, u))
	assert.Equal(t, "A", <-obs.skipped)

	close(release)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, frameValues(t, receive(t, rs.updates)))
}

func TestSessionBackendErrorKeepsPolling(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(t0)
	var calls atomic.Int32
	boom := errors.New("connection reset")
	q := querierFunc(func(context.Context, core.Target, core.TimeRange, map[string]string) (*core.Response, error) {
		if calls.Add(1) == 1 {
			return nil, &core.BackendError{RefID: "A", Err: boom}
		}
		return testutil.Series(t0, time.Second, 1, 2), nil
	})
	s := NewSession(core.Target{RefID: "A", StreamingInterval: 5}, 10, q, SessionConfig{Clock: clk})
	rs := start(s)
	defer rs.stop(t)

	u := receive(t, rs.updates)
	require.True(t, u.IsError())
	assert.ErrorIs(t, u.Err, boom)
	assert.Equal(t, "A", u.Key)

	u = receive(t, rs.updates)
	require.NotNil(t, u.Frame)
	assert.Equal(t, 0, u.Frame.Rows())
	assert.Equal(t, StateSeeding, s.State())

	require.NoError(t, clk.WaitAdvance(interval, waitFor, 1))
	assert.Equal(t, []any{1.0, 2.0}, frameValues(t, receive(t, rs.updates)))
	assert.Equal(t, StatePolling, s.State())
}

func TestSessionRejectsResponseWithoutTimeField(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(t0)
	q := querierFunc(func(context.Context, core.Target, core.TimeRange, map[string]string) (*core.Response, error) {
		return testutil.Table([]string{"host"}, []string{"a"}), nil
	})
	s := NewSession(core.Target{RefID: "A"}, 10, q, SessionConfig{Clock: clk})
	rs := start(s)
	defer rs.stop(t)

	u := receive(t, rs.updates)
	require.True(t, u.IsError())
	assert.True(t, core.IsSchemaViolation(u.Err))
	assert.Equal(t, StateSeeding, s.State())
}

func TestSessionSchemaChangeDuringPolling(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(t0)
	var calls atomic.Int32
	q := querierFunc(func(context.Context, core.Target, core.TimeRange, map[string]string) (*core.Response, error) {
		resp := testutil.Series(t0, time.Second, 1, 2)
		if calls.Add(1) == 2 {
			resp.Fields[1].Name = "renamed"
		}
		return resp, nil
	})
	s := NewSession(core.Target{RefID: "A", StreamingInterval: 5}, 10, q, SessionConfig{Clock: clk})
	rs := start(s)
	defer rs.stop(t)

	assert.Equal(t, []any{1.0, 2.0}, frameValues(t, receive(t, rs.updates)))

	require.NoError(t, clk.WaitAdvance(interval, waitFor, 1))
	u := receive(t, rs.updates)
	require.True(t, u.IsError())
	assert.True(t, core.IsSchemaViolation(u.Err))
	u = receive(t, rs.updates)
	assert.Equal(t, []any{1.0, 2.0}, frameValues(t, u))
	assert.Equal(t, "value", u.Frame.Fields[1].Name)

	require.NoError(t, clk.WaitAdvance(interval, waitFor, 1))
	assert.Equal(t, []any{1.0, 2.0, 2.0}, frameValues(t, receive(t, rs.updates)))
	assert.Equal(t, StatePolling, s.State())
}

func TestSessionSlidesTimeRange(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(t0)
	ranges := make(chan core.TimeRange, 4)
	q := querierFunc(func(_ context.Context, _ core.Target, r core.TimeRange, _ map[string]string) (*core.Response, error) {
		ranges <- r
		return testutil.Series(t0, time.Second, 1), nil
	})
	rng := core.TimeRange{From: t0.Add(-time.Hour), To: t0}
	s := NewSession(core.Target{RefID: "A", StreamingInterval: 5}, 10, q, SessionConfig{Clock: clk, Range: rng})
	rs := start(s)
	defer rs.stop(t)

	assert.Equal(t, rng, <-ranges)
	receive(t, rs.updates)

	require.NoError(t, clk.WaitAdvance(interval, waitFor, 1))
	assert.Equal(t, core.TimeRange{From: t0.Add(interval - time.Hour), To: t0.Add(interval)}, <-ranges)
	receive(t, rs.updates)
}

func TestSessionCancelDiscardsInFlightResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(t0)
	release := make(chan struct{})
	called := make(chan struct{})
	q := querierFunc(func(context.Context, core.Target, core.TimeRange, map[string]string) (*core.Response, error) {
		close(called)
		<-release
		return testutil.Series(t0, time.Second, 1), nil
	})
	obs := newRecordingObserver()
	s := NewSession(core.Target{RefID: "A"}, 10, q, SessionConfig{Clock: clk, Observer: obs})
	rs := start(s)

	<-called
	rs.stop(t)
	close(release)

	select {
	case u := <-rs.updates:
		t.Fatalf("unexpected update after cancel: %+v", u)
	case <-time.After(50 * time.Millisecond):
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{"A"}, obs.started)
	assert.Equal(t, []string{"A"}, obs.stopped)
	assert.Zero(t, obs.ticks)
}

func TestSessionRunsOnce(t *testing.T) {
	s := NewSession(core.Target{RefID: "A"}, 10, querierFunc(nil), SessionConfig{Clock: testclock.NewClock(t0)})
	s.started.Store(true)
	s.Run(context.Background(), func(core.Update) { t.Fatal("unexpected update") })
	assert.Equal(t, StateIdle, s.State())
}
