package vertica

import (
	"log/slog"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
)

func init() {
	backend.Register(backend.Info{
		Name:        "vertica",
		Description: "Vertica cluster reached through vertica-sql-go",
		Params: []backend.ParamSpec{
			{Name: "tlsmode", Type: "string", Description: "none, server or server-strict; default none"},
			{Name: "connection_load_balance", Type: "bool", Description: "let the initiator redirect to another node"},
			{Name: "use_prepared_statements", Type: "bool", Description: "bind arguments server side"},
		},
	}, func(l *slog.Logger) backend.Client { return New(l) })
}
