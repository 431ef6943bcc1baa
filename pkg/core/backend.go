package core

import "time"

// BackendConfig holds configuration for connecting to a query backend.
type BackendConfig struct {
	Type     string
	Path     string
	URL      string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Token    string
	Options  map[string]string
	Params   map[string]any

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}
