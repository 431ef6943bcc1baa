package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/leapstack-labs/sqlstream/internal/cli/config"
	"github.com/leapstack-labs/sqlstream/internal/query"
	"github.com/leapstack-labs/sqlstream/internal/state"
	"github.com/leapstack-labs/sqlstream/internal/stream"
	"github.com/leapstack-labs/sqlstream/pkg/backend"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

// NewCommandContext reads the config and logger stored by the root command.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	return &CommandContext{
		Cfg:    config.FromContext(cmd.Context()),
		Logger: config.GetLogger(cmd.Context()),
	}
}

// Connect opens the configured backend. The caller must close it.
func (c *CommandContext) Connect(ctx context.Context) (backend.Client, error) {
	client, err := backend.NewClient(c.Cfg.Backend.Core(), c.Logger)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx, c.Cfg.Backend.Core()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s backend: %w", c.Cfg.Backend.Type, err)
	}
	return client, nil
}

// Executor builds an executor over client.
func (c *CommandContext) Executor(client backend.Client, recorder query.Recorder) *query.Executor {
	return query.New(query.Config{Client: client, Logger: c.Logger, Recorder: recorder})
}

// Dispatcher builds a dispatcher with the configured query timeout.
func (c *CommandContext) Dispatcher(exec stream.Executor, observer stream.Observer) *stream.Dispatcher {
	return stream.NewDispatcher(exec, stream.SessionConfig{
		Logger:       c.Logger,
		Observer:     observer,
		QueryTimeout: c.Cfg.Streaming.QueryTimeout,
		MaxCapacity:  c.Cfg.Streaming.MaxCapacity,
	})
}

// OpenJournal opens the session journal, creating its directory.
func (c *CommandContext) OpenJournal() (*state.Journal, error) {
	if err := ensureDir(c.Cfg.StatePath); err != nil {
		return nil, err
	}
	j := state.NewJournal(c.Logger)
	if err := j.Open(c.Cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open session journal: %w", err)
	}
	return j, nil
}

// ApplyStreamingDefaults fills the request's capacity and the interval of
// streaming targets from the streaming config section.
func ApplyStreamingDefaults(req *core.Request, cfg config.StreamingConfig) {
	if req.MaxDataPoints <= 0 && cfg.DefaultCapacity > 0 {
		req.MaxDataPoints = cfg.DefaultCapacity
	}
	seconds := int(cfg.DefaultInterval.Seconds())
	for i := range req.Targets {
		if req.Targets[i].Streaming && req.Targets[i].StreamingInterval <= 0 && seconds > 0 {
			req.Targets[i].StreamingInterval = seconds
		}
	}
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}
