// Package postgres provides a PostgreSQL query backend for sqlstream.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
	"github.com/leapstack-labs/sqlstream/pkg/core"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

// Client implements backend.Client for PostgreSQL.
type Client struct {
	backend.BaseSQLClient
}

// New creates a new PostgreSQL client instance.
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
	return "postgres"
}

// Connect establishes a connection to PostgreSQL.
func (c *Client) Connect(ctx context.Context, cfg core.BackendConfig) error {
	dsn := buildPostgresDSN(cfg)

	c.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	backend.ApplyPool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	c.DB = db
	c.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a key=value PostgreSQL connection string.
func buildPostgresDSN(cfg core.BackendConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)

	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	if tz, ok := cfg.Options["timezone"]; ok {
		dsn += fmt.Sprintf(" timezone=%s", tz)
	}

	return dsn
}

// Ensure Client implements backend.Client interface
var _ backend.Client = (*Client)(nil)
