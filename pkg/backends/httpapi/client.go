// Package httpapi provides a query backend that forwards queries to a
// remote HTTP query API speaking the same columnar result format.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/carlmjohnson/requests"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// Client implements backend.Client over HTTP.
type Client struct {
	logger *slog.Logger
	http   *http.Client
	cfg    core.BackendConfig
	params *Params
}

// New creates a new HTTP client instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{logger: logger}
}

// Name returns the registered backend type.
func (c *Client) Name() string {
	return "http"
}

// Connect validates the config and checks the remote health endpoint.
func (c *Client) Connect(ctx context.Context, cfg core.BackendConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("http backend requires backend.url")
	}
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.params = params
	c.http = &http.Client{Timeout: params.Timeout}

	c.logger.Debug("connecting to http backend", slog.String("url", cfg.URL))
	return c.Ping(ctx)
}

// Close is a no-op; the underlying transport is shared.
func (c *Client) Close() error {
	if c.http != nil {
		c.http.CloseIdleConnections()
	}
	return nil
}

// Ping requests the remote health path.
func (c *Client) Ping(ctx context.Context) error {
	if c.params == nil {
		return fmt.Errorf("http backend not connected")
	}
	if err := c.builder(c.params.HealthPath).Fetch(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Execute posts q to the remote query path and decodes the result for
// q.RefID.
func (c *Client) Execute(ctx context.Context, q core.Query) (*core.Response, error) {
	if c.params == nil {
		return nil, fmt.Errorf("http backend not connected")
	}

	payload := queryPayload{Targets: []queryBody{{
		RefID:  q.RefID,
		Query:  q.Text,
		Format: q.Format,
	}}}
	var out queryResult
	err := c.builder(c.params.QueryPath).
		BodyJSON(&payload).
		ToJSON(&out).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	res, ok := out.Results[q.RefID]
	if !ok {
		return nil, fmt.Errorf("response has no result for %s", q.RefID)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("remote error: %s", res.Error)
	}
	return res.toResponse(), nil
}

func (c *Client) builder(path string) *requests.Builder {
	b := requests.URL(c.cfg.URL).
		Path(path).
		Client(c.http).
		Accept("application/json")
	for k, v := range c.params.Headers {
		b.Header(k, v)
	}
	switch {
	case c.cfg.Token != "":
		b.Bearer(c.cfg.Token)
	case c.cfg.Username != "" && c.cfg.Password != "":
		b.BasicAuth(c.cfg.Username, c.cfg.Password)
	}
	return b
}

// Ensure Client implements backend.Client interface
var _ backend.Client = (*Client)(nil)
