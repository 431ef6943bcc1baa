package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format selects how a backend result is shaped before it is published.
type Format string

// Result formats.
const (
	FormatTable      Format = "table"
	FormatTimeSeries Format = "time_series"
)

// ParseFormat accepts the canonical names plus the spellings used by
// dashboard query models ("Table", "TimeSeries", "Time Series").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "", "table":
		return FormatTable, nil
	case "time_series", "timeseries":
		return FormatTimeSeries, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected table or time_series)", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(b []byte) error {
	parsed, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// GapFillMode selects the value written into missing time buckets.
type GapFillMode string

// Gap fill modes.
const (
	GapFillStatic   GapFillMode = "static"
	GapFillNull     GapFillMode = "null"
	GapFillPrevious GapFillMode = "previous"
	GapFillZero     GapFillMode = "zero"
)

// Valid reports whether m is a known mode.
func (m GapFillMode) Valid() bool {
	switch m {
	case GapFillStatic, GapFillNull, GapFillPrevious, GapFillZero:
		return true
	}
	return false
}

// GapFill configures bucket filling for time_series results.
type GapFill struct {
	Enabled bool        `json:"enabled" yaml:"enabled"`
	Mode    GapFillMode `json:"mode,omitempty" yaml:"mode"`
	Value   float64     `json:"value,omitempty" yaml:"value"`
}

// DefaultStreamingInterval is used when a streaming target leaves its
// interval unset.
const DefaultStreamingInterval = 60 * time.Second

// DefaultCapacity bounds a frame when the request carries no MaxDataPoints.
const DefaultCapacity = 1000

// DefaultMaxCapacity is the largest MaxDataPoints a streaming request may
// ask for unless configured otherwise.
const DefaultMaxCapacity = 100_000

// Target is one query within a request. Targets are immutable once a
// session is started for them; edits produce a new Target.
type Target struct {
	RefID  string `json:"refId" yaml:"ref_id"`
	Query  string `json:"queryString" yaml:"query"`
	Format Format `json:"format,omitempty" yaml:"format"`

	// QueryTemplated is the query after variable substitution. It is
	// filled by the executor and never read from input.
	QueryTemplated string `json:"queryTemplated,omitempty" yaml:"-"`

	Streaming         bool  `json:"streaming,omitempty" yaml:"streaming"`
	StreamingInterval int   `json:"streamingInterval,omitempty" yaml:"streaming_interval"`
	IntervalMs        int64 `json:"intervalMs,omitempty" yaml:"interval_ms"`
	Hide              bool  `json:"hide,omitempty" yaml:"hide"`

	GapFill GapFill `json:"gapFill" yaml:"gap_fill"`
}

// Interval returns the polling period of a streaming target.
func (t Target) Interval() time.Duration {
	if t.StreamingInterval <= 0 {
		return DefaultStreamingInterval
	}
	return time.Duration(t.StreamingInterval) * time.Second
}

// TimeRange is the window a query covers. The zero value means unset.
type TimeRange struct {
	From time.Time `json:"from" yaml:"from"`
	To   time.Time `json:"to" yaml:"to"`
}

// IsZero reports whether the range is unset.
func (r TimeRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Span returns To - From.
func (r TimeRange) Span() time.Duration {
	return r.To.Sub(r.From)
}

// SlideTo returns the range shifted so that it ends at now, keeping its span.
func (r TimeRange) SlideTo(now time.Time) TimeRange {
	if r.IsZero() {
		return r
	}
	return TimeRange{From: now.Add(-r.Span()), To: now}
}

// Request is a batch of targets submitted together.
type Request struct {
	Targets       []Target          `json:"targets"`
	MaxDataPoints int               `json:"maxDataPoints,omitempty"`
	Range         TimeRange         `json:"range"`
	ScopedVars    map[string]string `json:"scopedVars,omitempty"`
}

// Capacity returns the per-frame row bound for this request.
func (r Request) Capacity() int {
	if r.MaxDataPoints <= 0 {
		return DefaultCapacity
	}
	return r.MaxDataPoints
}

// StreamingCount returns how many targets are flagged streaming.
func (r Request) StreamingCount() int {
	n := 0
	for _, t := range r.Targets {
		if t.Streaming {
			n++
		}
	}
	return n
}

// Query is the unit handed to a backend client.
type Query struct {
	RefID  string
	Text   string
	Format Format
}

// MetricFindValue is one option produced by a variable-value query.
type MetricFindValue struct {
	Text  string `json:"text"`
	Value any    `json:"value"`
}

// MarshalJSON keeps format names canonical on the wire.
func (f Format) MarshalJSON() ([]byte, error) {
	if f == "" {
		return json.Marshal(string(FormatTable))
	}
	return json.Marshal(string(f))
}
