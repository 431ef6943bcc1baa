// Package backend defines the query client contract that every data
// source implements, plus the shared database/sql plumbing.
//
// Concrete clients live in pkg/backends/ subdirectories and register
// themselves from init().
package backend

import (
	"context"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// Client executes queries against one data source.
type Client interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg core.BackendConfig) error

	// Close releases the connection.
	Close() error

	// Ping verifies the data source is reachable.
	Ping(ctx context.Context) error

	// Execute runs one query and returns its columnar result.
	// Implementations must be safe for concurrent use.
	Execute(ctx context.Context, q core.Query) (*core.Response, error)

	// Name returns the registered client type.
	Name() string
}
