package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/leapstack-labs/sqlstream/pkg/backend"
)

// OutputFormats lists the accepted values of the output setting.
var OutputFormats = []string{"table", "json", "csv", "markdown"}

// ApplyBackendDefaults fills backend fields that depend on the type.
func ApplyBackendDefaults(b *BackendConfig) {
	if b == nil {
		return
	}
	b.Type = strings.ToLower(b.Type)
	if b.Type == "" {
		b.Type = DefaultBackendType
	}
	if b.Type == "postgres" && b.Port == 0 {
		b.Port = DefaultPostgresPort
	}
}

// ParseLogLevel parses a level name such as "debug" or "warn".
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: use debug, info, warn or error", s)
	}
	return level, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Backend == nil || c.Backend.Type == "" {
		return fmt.Errorf("backend type is required")
	}
	if !backend.IsRegistered(c.Backend.Type) {
		return fmt.Errorf("unknown backend type %q; available: %s",
			c.Backend.Type, strings.Join(backend.ListClients(), ", "))
	}
	if err := backend.CheckParams(c.Backend.Core()); err != nil {
		return err
	}
	if c.Backend.Type == "http" && c.Backend.URL == "" {
		return fmt.Errorf("backend url is required for the http backend")
	}
	if c.Streaming.DefaultInterval < 0 {
		return fmt.Errorf("streaming.default_interval must not be negative")
	}
	if c.Streaming.DefaultCapacity < 0 {
		return fmt.Errorf("streaming.default_capacity must not be negative")
	}
	if c.Streaming.MaxCapacity < 0 {
		return fmt.Errorf("streaming.max_capacity must not be negative")
	}
	if c.Streaming.MaxCapacity > 0 && c.Streaming.DefaultCapacity > c.Streaming.MaxCapacity {
		return fmt.Errorf("streaming.default_capacity %d exceeds streaming.max_capacity %d",
			c.Streaming.DefaultCapacity, c.Streaming.MaxCapacity)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.OutputFormat != "" && !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("invalid output %q: use one of %s", c.OutputFormat, strings.Join(OutputFormats, ", "))
	}
	return nil
}
