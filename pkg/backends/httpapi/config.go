package httpapi

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds HTTP backend configuration.
// Parsed from core.BackendConfig.Params using mapstructure.
type Params struct {
	QueryPath  string            `mapstructure:"query_path"`
	HealthPath string            `mapstructure:"health_path"`
	Headers    map[string]string `mapstructure:"headers"`
	Timeout    time.Duration     `mapstructure:"timeout"`
}

// ParseParams decodes raw params and applies defaults.
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           p,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create params decoder: %w", err)
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("invalid http params: %w", err)
		}
	}
	if p.QueryPath == "" {
		p.QueryPath = "/api/query"
	}
	if p.HealthPath == "" {
		p.HealthPath = "/api/health"
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	return p, nil
}
