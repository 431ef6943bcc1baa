package commands

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// RangeSpec is the time range section of a targets file: either a
// trailing window (last) or explicit bounds.
type RangeSpec struct {
	Last time.Duration `yaml:"last"`
	From time.Time     `yaml:"from"`
	To   time.Time     `yaml:"to"`
}

// TargetsFile is a request described in YAML.
type TargetsFile struct {
	MaxDataPoints int               `yaml:"max_data_points"`
	Range         RangeSpec         `yaml:"range"`
	Vars          map[string]string `yaml:"vars"`
	Targets       []core.Target     `yaml:"targets"`
}

// LoadTargetsFile reads and parses a targets file.
func LoadTargetsFile(path string) (*TargetsFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the user
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	return ParseTargets(data)
}

// ParseTargets parses targets file content.
func ParseTargets(data []byte) (*TargetsFile, error) {
	var tf TargetsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("invalid targets file: %w", err)
	}
	if len(tf.Targets) == 0 {
		return nil, fmt.Errorf("invalid targets file: no targets")
	}
	for i, t := range tf.Targets {
		if t.Query == "" {
			return nil, fmt.Errorf("invalid targets file: target %d (%s) has no query", i, t.RefID)
		}
		if t.GapFill.Mode != "" && !t.GapFill.Mode.Valid() {
			return nil, fmt.Errorf("invalid targets file: target %s: unknown gap fill mode %q", t.RefID, t.GapFill.Mode)
		}
	}
	if tf.Range.Last < 0 {
		return nil, fmt.Errorf("invalid targets file: range.last must not be negative")
	}
	return &tf, nil
}

// Request builds the request as of now.
func (tf *TargetsFile) Request(now time.Time) core.Request {
	rng := core.TimeRange{From: tf.Range.From, To: tf.Range.To}
	if tf.Range.Last > 0 {
		rng = core.TimeRange{From: now.Add(-tf.Range.Last), To: now}
	}
	targets := make([]core.Target, len(tf.Targets))
	copy(targets, tf.Targets)
	return core.Request{
		Targets:       targets,
		MaxDataPoints: tf.MaxDataPoints,
		Range:         rng,
		ScopedVars:    tf.Vars,
	}
}
