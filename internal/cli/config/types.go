// Package config loads sqlstream's CLI configuration.
//
// Values are layered, lowest precedence first: built-in defaults, the
// config file (sqlstream.yaml or sqlstream.yml), SQLSTREAM_ environment
// variables, then explicitly set command-line flags.
package config

import (
	"time"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// BackendConfig selects and configures the query backend.
type BackendConfig struct {
	Type string `koanf:"type"` // duckdb, postgres, sqlite, http

	Database string `koanf:"database"` // file path or database name
	URL      string `koanf:"url"`      // http backend only

	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Token    string `koanf:"token"`

	Options map[string]string `koanf:"options"`
	Params  map[string]any    `koanf:"params"`

	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

// Core converts the backend section to the client configuration.
func (b *BackendConfig) Core() core.BackendConfig {
	return core.BackendConfig{
		Type:            b.Type,
		Path:            b.Database,
		URL:             b.URL,
		Host:            b.Host,
		Port:            b.Port,
		Database:        b.Database,
		Username:        b.User,
		Password:        b.Password,
		Token:           b.Token,
		Options:         b.Options,
		Params:          b.Params,
		MaxOpenConns:    b.MaxOpenConns,
		MaxIdleConns:    b.MaxIdleConns,
		ConnMaxIdleTime: b.ConnMaxIdleTime,
	}
}

// StreamingConfig holds defaults applied to streaming requests.
type StreamingConfig struct {
	DefaultInterval time.Duration `koanf:"default_interval"`
	DefaultCapacity int           `koanf:"default_capacity"`
	MaxCapacity     int           `koanf:"max_capacity"`
	QueryTimeout    time.Duration `koanf:"query_timeout"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Listen string `koanf:"listen"`
}

// Config holds all CLI configuration options.
type Config struct {
	Backend      *BackendConfig  `koanf:"backend"`
	Streaming    StreamingConfig `koanf:"streaming"`
	Server       ServerConfig    `koanf:"server"`
	StatePath    string          `koanf:"state_path"`
	LogLevel     string          `koanf:"log_level"`
	Verbose      bool            `koanf:"verbose"`
	OutputFormat string          `koanf:"output"`
}

// Default configuration values.
const (
	DefaultBackendType  = "duckdb"
	DefaultStateFile    = ".sqlstream/sessions.db"
	DefaultListen       = ":8080"
	DefaultLogLevel     = "warn"
	DefaultOutput       = "table"
	DefaultPostgresPort = 5432
)

// Defaults returns the configuration used when nothing else is set.
func Defaults() map[string]any {
	return map[string]any{
		"backend.type":               DefaultBackendType,
		"streaming.default_interval": core.DefaultStreamingInterval.String(),
		"streaming.default_capacity": core.DefaultCapacity,
		"streaming.max_capacity":     core.DefaultMaxCapacity,
		"streaming.query_timeout":    "30s",
		"server.listen":              DefaultListen,
		"state_path":                 DefaultStateFile,
		"log_level":                  DefaultLogLevel,
		"verbose":                    false,
		"output":                     DefaultOutput,
	}
}
