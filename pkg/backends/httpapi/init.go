package httpapi

import (
	"log/slog"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
)

func init() {
	backend.Register(backend.Info{
		Name:        "http",
		Description: "Remote query API reached over HTTP",
		Params: []backend.ParamSpec{
			{Name: "query_path", Type: "string", Description: "query endpoint, default /api/query"},
			{Name: "health_path", Type: "string", Description: "health endpoint, default /api/health"},
			{Name: "headers", Type: "map[string]string", Description: "extra request headers"},
			{Name: "timeout", Type: "duration", Description: "per-request timeout"},
		},
	}, func(l *slog.Logger) backend.Client { return New(l) })
}
