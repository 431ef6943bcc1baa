package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/leapstack-labs/sqlstream/internal/query"
	"github.com/leapstack-labs/sqlstream/internal/testutil"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

func newDispatcher(t *testing.T, client *testutil.FakeClient, clk *testclock.Clock, obs Observer) *Dispatcher {
	t.Helper()
	exec := query.New(query.Config{Client: client, Logger: testutil.NewTestLogger(t)})
	return NewDispatcher(exec, SessionConfig{Clock: clk, Logger: testutil.NewTestLogger(t), Observer: obs})
}

func seriesClient() *testutil.FakeClient {
	return testutil.NewFakeClient(func(context.Context, core.Query) (*core.Response, error) {
		return testutil.Series(t0, time.Second, 1, 2, 3), nil
	})
}

func TestDispatchRejectsMixedStreaming(t *testing.T) {
	client := seriesClient()
	d := newDispatcher(t, client, testclock.NewClock(t0), nil)

	_, err := d.Dispatch(context.Background(), core.Request{Targets: []core.Target{
		{RefID: "A", Query: "SELECT 1", Streaming: true},
		{RefID: "B", Query: "SELECT 2"},
		{RefID: "C", Query: "SELECT 3"},
	}})
	require.Error(t, err)

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 3, verr.Total)
	assert.Equal(t, 1, verr.Streaming)
	assert.Contains(t, err.Error(), "total=3, streaming=1")
	assert.Zero(t, client.CallCount())
}

func TestDispatchNonStreamingIsSynchronous(t *testing.T) {
	client := seriesClient()
	obs := newRecordingObserver()
	d := newDispatcher(t, client, testclock.NewClock(t0), obs)

	res, err := d.Dispatch(context.Background(), core.Request{Targets: []core.Target{
		{RefID: "A", Query: "SELECT 1"},
		{RefID: "B", Query: "SELECT 2"},
	}})
	require.NoError(t, err)
	assert.False(t, res.Streaming())
	require.NotNil(t, res.Response)
	assert.Len(t, res.Response.Responses, 2)
	assert.Equal(t, 2, client.CallCount())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Empty(t, obs.started, "no sessions for a non-streaming request")
}

func TestDispatchNonStreamingFailure(t *testing.T) {
	client := testutil.NewFakeClient(func(context.Context, core.Query) (*core.Response, error) {
		return nil, errors.New("boom")
	})
	d := newDispatcher(t, client, testclock.NewClock(t0), nil)

	_, err := d.Dispatch(context.Background(), core.Request{Targets: []core.Target{{RefID: "A", Query: "SELECT 1"}}})
	require.Error(t, err)
	assert.True(t, core.IsBackendError(err))
}

func TestDispatchEmptyRequest(t *testing.T) {
	d := newDispatcher(t, seriesClient(), testclock.NewClock(t0), nil)
	res, err := d.Dispatch(context.Background(), core.Request{})
	require.NoError(t, err)
	require.NotNil(t, res.Response)
	assert.Empty(t, res.Response.Responses)
}

func TestDispatchRejectsDuplicateRefIDs(t *testing.T) {
	client := seriesClient()
	d := newDispatcher(t, client, testclock.NewClock(t0), nil)
	_, err := d.Dispatch(context.Background(), core.Request{Targets: []core.Target{
		{RefID: "A", Streaming: true},
		{RefID: "A", Streaming: true},
	}})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Zero(t, client.CallCount())
}

func TestDispatchRejectsCapacityAboveLimit(t *testing.T) {
	client := seriesClient()
	exec := query.New(query.Config{Client: client, Logger: testutil.NewTestLogger(t)})
	d := NewDispatcher(exec, SessionConfig{Clock: testclock.NewClock(t0), MaxCapacity: 500})

	_, err := d.Dispatch(context.Background(), core.Request{
		MaxDataPoints: 501,
		Targets:       []core.Target{{RefID: "A", Query: "SELECT 1", Streaming: true}},
	})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Contains(t, err.Error(), "maxDataPoints 501 exceeds the limit of 500")
	assert.Zero(t, client.CallCount())
}

func TestDispatchDefaultCapacityLimit(t *testing.T) {
	client := seriesClient()
	d := newDispatcher(t, client, testclock.NewClock(t0), nil)

	_, err := d.Dispatch(context.Background(), core.Request{
		MaxDataPoints: 1 << 40,
		Targets:       []core.Target{{RefID: "A", Query: "SELECT 1", Streaming: true}},
	})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Zero(t, client.CallCount())
}

func TestDispatchStreamingFansOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(t0)
	client := seriesClient()
	d := newDispatcher(t, client, clk, nil)

	res, err := d.Dispatch(context.Background(), core.Request{
		MaxDataPoints: 2,
		Targets: []core.Target{
			{RefID: "A", Query: "SELECT a", Streaming: true, StreamingInterval: 1},
			{RefID: "B", Query: "SELECT b", Streaming: true, StreamingInterval: 1},
			{RefID: "H", Query: "SELECT h", Streaming: true, Hide: true},
		},
	})
	require.NoError(t, err)
	require.True(t, res.Streaming())
	require.Len(t, res.Feed.Sessions(), 2)

	seen := map[string]int{}
	for len(seen) < 2 {
		u := receive(t, res.Feed.Events())
		require.NotNil(t, u.Frame)
		seen[u.Key] = u.Frame.Rows()
	}
	assert.Equal(t, map[string]int{"A": 2, "B": 2}, seen)

	res.Feed.Cancel()
	for _, q := range client.Calls() {
		assert.False(t, strings.Contains(q.Text, "SELECT h"), "hidden target must not be queried")
	}
}
