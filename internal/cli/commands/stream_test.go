package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlstream/internal/cli/config"
	"github.com/leapstack-labs/sqlstream/internal/query"
	"github.com/leapstack-labs/sqlstream/internal/stream"
	"github.com/leapstack-labs/sqlstream/internal/testutil"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

func TestRefIDFor(t *testing.T) {
	tests := map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA", 701: "ZZ", 702: "AAA"}
	for i, want := range tests {
		assert.Equal(t, want, refIDFor(i), "index %d", i)
	}
}

func TestBuildStreamRequest_Args(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	opts := &StreamOptions{
		Interval:      10 * time.Second,
		MaxDataPoints: 50,
		ResultFormat:  "time_series",
		Last:          15 * time.Minute,
		Vars:          map[string]string{"host": "db1"},
	}

	req, err := buildStreamRequest([]string{"SELECT 1", "SELECT 2"}, opts, now)
	require.NoError(t, err)

	require.Len(t, req.Targets, 2)
	assert.Equal(t, "A", req.Targets[0].RefID)
	assert.Equal(t, "B", req.Targets[1].RefID)
	assert.Equal(t, "SELECT 2", req.Targets[1].Query)
	for _, tgt := range req.Targets {
		assert.True(t, tgt.Streaming)
		assert.Equal(t, 10, tgt.StreamingInterval)
		assert.Equal(t, core.FormatTimeSeries, tgt.Format)
	}
	assert.Equal(t, 50, req.MaxDataPoints)
	assert.Equal(t, now.Add(-15*time.Minute), req.Range.From)
	assert.Equal(t, now, req.Range.To)
	assert.Equal(t, "db1", req.ScopedVars["host"])
}

func TestBuildStreamRequest_Errors(t *testing.T) {
	_, err := buildStreamRequest(nil, &StreamOptions{}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provide SQL or --targets")

	_, err = buildStreamRequest([]string{"SELECT 1"}, &StreamOptions{ResultFormat: "heatmap"}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestBuildStreamRequest_TargetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTargets), 0o600))

	opts := &StreamOptions{
		Targets:       path,
		MaxDataPoints: 20,
		Vars:          map[string]string{"host": "db2", "dc": "eu"},
	}
	req, err := buildStreamRequest([]string{"ignored"}, opts, time.Now())
	require.NoError(t, err)

	assert.Len(t, req.Targets, 2)
	assert.Equal(t, 20, req.MaxDataPoints)
	assert.Equal(t, map[string]string{"host": "db2", "dc": "eu"}, req.ScopedVars)
}

func TestApplyStreamingDefaults(t *testing.T) {
	cfg := config.StreamingConfig{DefaultInterval: 15 * time.Second, DefaultCapacity: 300}

	req := core.Request{Targets: []core.Target{
		{RefID: "A", Streaming: true},
		{RefID: "B", Streaming: true, StreamingInterval: 2},
		{RefID: "C"},
	}}
	ApplyStreamingDefaults(&req, cfg)

	assert.Equal(t, 300, req.MaxDataPoints)
	assert.Equal(t, 15, req.Targets[0].StreamingInterval)
	assert.Equal(t, 2, req.Targets[1].StreamingInterval)
	assert.Equal(t, 0, req.Targets[2].StreamingInterval)

	req = core.Request{MaxDataPoints: 10}
	ApplyStreamingDefaults(&req, cfg)
	assert.Equal(t, 10, req.MaxDataPoints)
}

func TestMergeVars(t *testing.T) {
	base := map[string]string{"a": "1", "b": "2"}
	out := mergeVars(base, map[string]string{"b": "3"})
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, out)
	assert.Equal(t, "2", base["b"])
}

func startFeed(t *testing.T, client *testutil.FakeClient, targets ...core.Target) *stream.Feed {
	t.Helper()
	// Blocked backend calls outlive the test, so nothing here logs to t.
	exec := query.New(query.Config{Client: client})
	d := stream.NewDispatcher(exec, stream.SessionConfig{
		Clock: testclock.NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	res, err := d.Dispatch(context.Background(), core.Request{Targets: targets})
	require.NoError(t, err)
	require.True(t, res.Streaming())
	t.Cleanup(res.Feed.Cancel)
	return res.Feed
}

func TestConsumeFeed_CountLimit(t *testing.T) {
	client := testutil.NewFakeClient(func(context.Context, core.Query) (*core.Response, error) {
		return testutil.Series(time.Date(2024, 3, 1, 11, 59, 0, 0, time.UTC), time.Second, 1.5, 2.5), nil
	})
	feed := startFeed(t, client, core.Target{RefID: "A", Query: "SELECT time, value FROM cpu", Streaming: true})

	var out, errOut bytes.Buffer
	p := newFeedPrinter(&out, &errOut, 0)
	remaining := 1

	next, err := consumeFeed(context.Background(), feed, p, &remaining, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, 0, remaining)
	assert.Contains(t, out.String(), "── A")
	assert.Contains(t, out.String(), "2.5")
	assert.Contains(t, out.String(), "(2 rows)")
	assert.Empty(t, errOut.String())
}

func TestConsumeFeed_PrintsErrors(t *testing.T) {
	client := testutil.NewFakeClient(func(context.Context, core.Query) (*core.Response, error) {
		return nil, errors.New("relation does not exist")
	})
	feed := startFeed(t, client, core.Target{RefID: "A", Query: "SELECT * FROM missing", Streaming: true})

	var out, errOut bytes.Buffer
	p := newFeedPrinter(&out, &errOut, 0)
	remaining := 1

	_, err := consumeFeed(context.Background(), feed, p, &remaining, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, errOut.String(), "[A] error:")
	assert.Contains(t, errOut.String(), "relation does not exist")
}

func TestConsumeFeed_Reload(t *testing.T) {
	release := make(chan struct{})
	client := testutil.NewFakeClient(func(ctx context.Context, _ core.Query) (*core.Response, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, errors.New("released")
	})
	feed := startFeed(t, client, core.Target{RefID: "A", Query: "SELECT 1", Streaming: true})
	t.Cleanup(func() { close(release) })

	reload := make(chan struct{}, 1)
	reload <- struct{}{}

	want := core.Request{Targets: []core.Target{{RefID: "B", Query: "SELECT 2", Streaming: true}}}
	loads := 0
	load := func() (core.Request, error) {
		loads++
		if loads == 1 {
			reload <- struct{}{}
			return core.Request{}, errors.New("invalid targets file: no targets")
		}
		return want, nil
	}

	var out, errOut bytes.Buffer
	remaining := 0
	next, err := consumeFeed(context.Background(), feed, newFeedPrinter(&out, &errOut, 0), &remaining, reload, load)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, want, *next)
	assert.Equal(t, 2, loads)
	assert.Contains(t, errOut.String(), "[reload] error:")
	assert.Contains(t, errOut.String(), "no targets")
}

func TestConsumeFeed_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	client := testutil.NewFakeClient(func(ctx context.Context, _ core.Query) (*core.Response, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, errors.New("released")
	})
	feed := startFeed(t, client, core.Target{RefID: "A", Query: "SELECT 1", Streaming: true})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	remaining := 0
	next, err := consumeFeed(ctx, feed, newFeedPrinter(&bytes.Buffer{}, &bytes.Buffer{}, 0), &remaining, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestFeedPrinter_PrintResponse(t *testing.T) {
	resp := core.NewQueryDataResponse()
	resp.Responses["B"] = core.DataResponse{Frames: []core.DataFrame{{RefID: "B", Fields: testutil.Table([]string{"n"}, []string{"two"}).Fields}}}
	resp.Responses["A"] = core.DataResponse{Frames: []core.DataFrame{{RefID: "A", Fields: testutil.Table([]string{"n"}, []string{"one"}).Fields}}}

	var out bytes.Buffer
	require.NoError(t, newFeedPrinter(&out, &bytes.Buffer{}, 0).printResponse(resp))

	s := out.String()
	assert.Less(t, bytes.Index(out.Bytes(), []byte("── A")), bytes.Index(out.Bytes(), []byte("── B")))
	assert.Contains(t, s, "one")
	assert.Contains(t, s, "two")
}

func TestWatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTargets), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, stop, err := watchFile(ctx, path, func(string, ...any) {})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(sampleTargets+"\n"), 0o600))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}
