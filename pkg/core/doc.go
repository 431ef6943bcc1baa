// Package core defines the shared language of sqlstream.
//
// This package contains:
//   - Query model (Target, Request, TimeRange, GapFill)
//   - Columnar result types (FieldSchema, Field, Response, DataFrame)
//   - Stream events (Update) and variable values (MetricFindValue)
//   - The error taxonomy shared by the engine and its surfaces
//
// pkg/core imports only the standard library.
// All other packages depend on core, not the reverse.
package core
