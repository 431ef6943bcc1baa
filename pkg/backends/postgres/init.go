package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
)

func init() {
	backend.Register(backend.Info{
		Name:        "postgres",
		Description: "PostgreSQL server; sslmode and timezone come from backend.options",
	}, func(l *slog.Logger) backend.Client { return New(l) })
}
