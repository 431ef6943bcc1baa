// Package sqlite provides a SQLite query backend for sqlstream, backed by
// the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
	"github.com/leapstack-labs/sqlstream/pkg/core"

	_ "modernc.org/sqlite" // sqlite driver
)

// Client implements backend.Client for SQLite.
type Client struct {
	backend.BaseSQLClient
}

// New creates a new SQLite client instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		BaseSQLClient: backend.BaseSQLClient{Logger: logger},
	}
}

// Name returns the registered backend type.
func (c *Client) Name() string {
	return "sqlite"
}

// Connect opens the database file at cfg.Path (":memory:" when empty).
// The file is opened read-only unless options.mode says otherwise.
func (c *Client) Connect(ctx context.Context, cfg core.BackendConfig) error {
	dsn := buildDSN(cfg)
	c.Logger.Debug("connecting to sqlite", slog.String("dsn", dsn))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	backend.ApplyPool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	c.DB = db
	c.Cfg = cfg
	return nil
}

func buildDSN(cfg core.BackendConfig) string {
	if cfg.Path == "" || cfg.Path == ":memory:" {
		return ":memory:"
	}
	mode := "ro"
	if m, ok := cfg.Options["mode"]; ok {
		mode = m
	}
	return fmt.Sprintf("file:%s?mode=%s&_pragma=busy_timeout(5000)", cfg.Path, mode)
}

// Ensure Client implements backend.Client interface
var _ backend.Client = (*Client)(nil)
