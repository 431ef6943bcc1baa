package sqlite

import (
	"log/slog"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
)

func init() {
	backend.Register(backend.Info{
		Name:        "sqlite",
		Description: "SQLite database file; mode comes from backend.options",
	}, func(l *slog.Logger) backend.Client { return New(l) })
}
