// Package vertica provides a Vertica query backend for sqlstream.
package vertica

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
	"github.com/leapstack-labs/sqlstream/pkg/core"

	_ "github.com/vertica/vertica-sql-go" // vertica database/sql driver
)

// DefaultPort is the Vertica client port.
const DefaultPort = 5433

// Client implements backend.Client for Vertica.
type Client struct {
	backend.BaseSQLClient
}

// New creates a new Vertica client instance.
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
	return "vertica"
}

// Connect opens a connection pool to Vertica and pings it.
func (c *Client) Connect(ctx context.Context, cfg core.BackendConfig) error {
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return err
	}
	dsn := buildVerticaDSN(cfg, params)

	c.Logger.Debug("connecting to vertica",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Database),
		slog.String("tlsmode", params.TLSMode))

	db, err := sql.Open("vertica", dsn)
	if err != nil {
		return fmt.Errorf("failed to open vertica connection: %w", err)
	}
	backend.ApplyPool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping vertica: %w", err)
	}

	c.DB = db
	c.Cfg = cfg
	return nil
}

// buildVerticaDSN constructs a vertica:// URL. A host that already carries
// a port keeps it unless cfg.Port is set.
func buildVerticaDSN(cfg core.BackendConfig, p *Params) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := strconv.Itoa(DefaultPort)
	if h, hp, err := net.SplitHostPort(host); err == nil {
		host, port = h, hp
	}
	if cfg.Port > 0 {
		port = strconv.Itoa(cfg.Port)
	}

	u := url.URL{
		Scheme: "vertica",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	q := url.Values{}
	q.Set("tlsmode", p.TLSMode)
	q.Set("connection_load_balance", flag(p.ConnectionLoadBalance))
	q.Set("use_prepared_statements", flag(p.UsePreparedStatements))
	u.RawQuery = q.Encode()
	return u.String()
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Ensure Client implements backend.Client interface
var _ backend.Client = (*Client)(nil)
