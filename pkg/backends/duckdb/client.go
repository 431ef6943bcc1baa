// Package duckdb provides a DuckDB query backend for sqlstream.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
	"github.com/leapstack-labs/sqlstream/pkg/core"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Client implements backend.Client for DuckDB.
type Client struct {
	backend.BaseSQLClient
}

// New creates a new DuckDB client instance.
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
	return "duckdb"
}

// Connect opens the database and applies extensions and settings from
// cfg.Params. Use ":memory:" (or an empty path) for an in-memory database.
func (c *Client) Connect(ctx context.Context, cfg core.BackendConfig) error {
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	backend.ApplyPool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	for _, stmt := range setupStatements(params) {
		c.Logger.Debug("duckdb setup", slog.String("sql", stmt))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply duckdb setup %q: %w", stmt, err)
		}
	}

	c.DB = db
	c.Cfg = cfg
	return nil
}

// setupStatements returns the INSTALL/LOAD/SET statements for params in a
// stable order.
func setupStatements(p *Params) []string {
	stmts := make([]string, 0, 2*len(p.Extensions)+len(p.Settings))
	for _, ext := range p.Extensions {
		stmts = append(stmts, "INSTALL "+ext, "LOAD "+ext)
	}
	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmts = append(stmts, fmt.Sprintf("SET %s = '%s'", k, strings.ReplaceAll(p.Settings[k], "'", "''")))
	}
	return stmts
}

// Ensure Client implements backend.Client interface
var _ backend.Client = (*Client)(nil)
