package vertica

import (
	"fmt"
	"slices"

	"github.com/go-viper/mapstructure/v2"
)

// TLS modes understood by the vertica driver.
var tlsModes = []string{"none", "server", "server-strict"}

// Params holds Vertica-specific configuration.
// Parsed from core.BackendConfig.Params using mapstructure.
type Params struct {
	// TLSMode is one of none, server or server-strict.
	TLSMode string `mapstructure:"tlsmode"`

	// ConnectionLoadBalance lets the initiator redirect to another node.
	ConnectionLoadBalance bool `mapstructure:"connection_load_balance"`

	// UsePreparedStatements binds arguments server side.
	UsePreparedStatements bool `mapstructure:"use_prepared_statements"`
}

// ParseParams decodes raw params and applies defaults.
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           p,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create params decoder: %w", err)
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("invalid vertica params: %w", err)
		}
	}
	if p.TLSMode == "" {
		p.TLSMode = "none"
	}
	if !slices.Contains(tlsModes, p.TLSMode) {
		return nil, fmt.Errorf("invalid vertica tlsmode %q: use one of %v", p.TLSMode, tlsModes)
	}
	return p, nil
}
