package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlstream/internal/stream"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

const reloadDebounce = 200 * time.Millisecond

// StreamOptions holds options for the stream command.
type StreamOptions struct {
	Targets       string
	Interval      time.Duration
	MaxDataPoints int
	ResultFormat  string
	Last          time.Duration
	Vars          map[string]string
	Tail          int
	Count         int
	Watch         bool
}

// NewStreamCommand creates the stream command.
func NewStreamCommand() *cobra.Command {
	opts := &StreamOptions{}

	cmd := &cobra.Command{
		Use:   "stream [SQL]",
		Short: "Poll queries and print every update",
		Long: `Start a live feed for one query or a targets file and print each update.

Every target gets its own session: the first poll seeds the frame with the
full result, later polls append only the newest row. Errors are printed and
the session keeps polling. Press Ctrl+C to stop.`,
		Example: `  # Poll one query every 5 seconds
  sqlstream stream --interval 5s "SELECT now() AS time, count(*) AS n FROM events"

  # Stream a targets file and restart when it changes
  sqlstream stream --targets targets.yaml --watch

  # Stop after 10 updates
  sqlstream stream --targets targets.yaml --count 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Targets, "targets", "t", "", "Targets file (YAML)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "Polling interval for SQL given as an argument (default: config streaming.default_interval)")
	cmd.Flags().IntVar(&opts.MaxDataPoints, "max-data-points", 0, "Rows kept per frame (default: config streaming.default_capacity)")
	cmd.Flags().StringVar(&opts.ResultFormat, "result-format", string(core.FormatTimeSeries), "Result shape for SQL given as an argument")
	cmd.Flags().DurationVar(&opts.Last, "last", 0, "Sliding window for $__from/$__to, e.g. 1h")
	cmd.Flags().StringToStringVar(&opts.Vars, "var", nil, "Template variable, e.g. --var host=db1")
	cmd.Flags().IntVar(&opts.Tail, "tail", 5, "Rows shown per update (0 for all)")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "Stop after this many updates (0 for no limit)")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Restart the feed when the targets file changes")

	return cmd
}

// buildStreamRequest returns the request for SQL args or the targets file.
// SQL given as arguments becomes one streaming target per argument.
func buildStreamRequest(args []string, opts *StreamOptions, now time.Time) (core.Request, error) {
	if opts.Targets != "" {
		tf, err := LoadTargetsFile(opts.Targets)
		if err != nil {
			return core.Request{}, err
		}
		req := tf.Request(now)
		if opts.MaxDataPoints > 0 {
			req.MaxDataPoints = opts.MaxDataPoints
		}
		if len(opts.Vars) > 0 {
			req.ScopedVars = mergeVars(req.ScopedVars, opts.Vars)
		}
		return req, nil
	}

	if len(args) == 0 {
		return core.Request{}, fmt.Errorf("provide SQL or --targets")
	}
	format, err := core.ParseFormat(opts.ResultFormat)
	if err != nil {
		return core.Request{}, err
	}
	req := core.Request{MaxDataPoints: opts.MaxDataPoints, ScopedVars: opts.Vars}
	if opts.Last > 0 {
		req.Range = core.TimeRange{From: now.Add(-opts.Last), To: now}
	}
	for i, sql := range args {
		req.Targets = append(req.Targets, core.Target{
			RefID:             refIDFor(i),
			Query:             sql,
			Format:            format,
			Streaming:         true,
			StreamingInterval: int(opts.Interval.Seconds()),
		})
	}
	return req, nil
}

// refIDFor names targets A, B, ... Z, AA, AB, ...
func refIDFor(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

func mergeVars(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}

func runStream(cmd *cobra.Command, args []string, opts *StreamOptions) error {
	if opts.Watch && opts.Targets == "" {
		return fmt.Errorf("--watch requires --targets")
	}

	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)

	client, err := cmdCtx.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var observer stream.Observer
	if journal, err := cmdCtx.OpenJournal(); err != nil {
		cmdCtx.Logger.Warn("session journal disabled", "error", err)
	} else {
		defer func() { _ = journal.Close() }()
		observer = journal
	}

	dispatcher := cmdCtx.Dispatcher(cmdCtx.Executor(client, nil), observer)
	p := newFeedPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.Tail)

	var reload <-chan struct{}
	if opts.Watch {
		changes, stop, err := watchFile(ctx, opts.Targets, cmdCtx.Logger.Warn)
		if err != nil {
			return err
		}
		defer stop()
		reload = changes
	}

	req, err := buildStreamRequest(args, opts, time.Now())
	if err != nil {
		return err
	}

	remaining := opts.Count
	for {
		ApplyStreamingDefaults(&req, cmdCtx.Cfg.Streaming)
		res, err := dispatcher.Dispatch(ctx, req)
		if err != nil {
			return err
		}
		if !res.Streaming() {
			return p.printResponse(res.Response)
		}

		next, err := consumeFeed(ctx, res.Feed, p, &remaining, reload, func() (core.Request, error) {
			return buildStreamRequest(args, opts, time.Now())
		})
		res.Feed.Cancel()
		if err != nil || next == nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "targets changed, restarting feed")
		req = *next
	}
}

// consumeFeed prints updates until the feed ends, the update budget is
// spent, or a reload yields a valid new request, which it returns. A reload
// that fails to parse is reported and the current feed keeps running.
func consumeFeed(
	ctx context.Context,
	feed *stream.Feed,
	p *feedPrinter,
	remaining *int,
	reload <-chan struct{},
	load func() (core.Request, error),
) (*core.Request, error) {
	for {
		select {
		case u, ok := <-feed.Events():
			if !ok {
				return nil, nil
			}
			if err := p.printUpdate(u); err != nil {
				return nil, err
			}
			if *remaining > 0 {
				*remaining--
				if *remaining == 0 {
					return nil, nil
				}
			}
		case <-reload:
			req, err := load()
			if err != nil {
				p.printError("reload", err)
				continue
			}
			return &req, nil
		case <-ctx.Done():
			return nil, nil
		}
	}
}

// feedPrinter writes updates to the terminal.
type feedPrinter struct {
	out    io.Writer
	errOut *termenv.Output
	tail   int
}

func newFeedPrinter(out, errOut io.Writer, tail int) *feedPrinter {
	return &feedPrinter{out: out, errOut: termenv.NewOutput(errOut), tail: tail}
}

func (p *feedPrinter) printUpdate(u core.Update) error {
	if u.IsError() {
		p.printError(u.Key, u.Err)
		return nil
	}
	resp := &core.Response{Fields: u.Frame.Fields}
	title := fmt.Sprintf("── %s  %s  %d rows ", u.Key, time.Now().Format(time.TimeOnly), resp.Rows())
	_, _ = fmt.Fprintln(p.out, title+strings.Repeat("─", max(0, 60-len([]rune(title)))))
	return renderTable(p.out, resp, p.tail)
}

func (p *feedPrinter) printError(key string, err error) {
	label := p.errOut.String(fmt.Sprintf("[%s] error:", key)).Foreground(p.errOut.Color("1")).Bold()
	_, _ = fmt.Fprintf(p.errOut, "%s %v\n", label, err)
}

func (p *feedPrinter) printResponse(resp *core.QueryDataResponse) error {
	for _, key := range slices.Sorted(maps.Keys(resp.Responses)) {
		dr := resp.Responses[key]
		for _, f := range dr.Frames {
			_, _ = fmt.Fprintf(p.out, "── %s\n", key)
			if err := renderTable(p.out, &core.Response{Fields: f.Fields}, p.tail); err != nil {
				return err
			}
		}
	}
	return nil
}

// watchFile reports debounced changes to path. Editors often replace files
// rather than write them, so the parent directory is watched.
func watchFile(ctx context.Context, path string, warn func(string, ...any)) (<-chan struct{}, func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to watch targets file: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, nil, fmt.Errorf("failed to watch targets file: %w", err)
	}

	changes := make(chan struct{}, 1)
	notify := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, notify)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				warn("watcher error", "error", err)
			}
		}
	}()

	stop := func() {
		_ = watcher.Close()
		<-done
	}
	return changes, stop, nil
}
