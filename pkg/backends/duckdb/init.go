// Package duckdb provides a DuckDB query backend for sqlstream.
//
// This file registers the DuckDB client with the backend registry.
// Import this package with a blank identifier to register the client:
//
//	import _ "github.com/leapstack-labs/sqlstream/pkg/backends/duckdb"
package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
)

func init() {
	backend.Register(backend.Info{
		Name:        "duckdb",
		Description: "Embedded DuckDB database file, or in-memory when no path is set",
		Params: []backend.ParamSpec{
			{Name: "extensions", Type: "[]string", Description: "extensions to install and load"},
			{Name: "settings", Type: "map[string]string", Description: "session settings such as memory_limit"},
		},
	}, func(l *slog.Logger) backend.Client { return New(l) })
}
