// Package template rewrites dashboard variable references in query text.
//
// Recognised forms are $name, ${name}, ${name:format} and [[name]].
// References to unknown variables are left exactly as written, so SQL
// that happens to contain '$' (positional parameters, dollar quoting)
// passes through untouched.
package template

import (
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// Supported ${name:format} suffixes.
const (
	FormatRaw       = "raw"
	FormatSQLString = "sqlstring"
	FormatCSV       = "csv"
)

// Substitute replaces every known variable reference in text. It is pure:
// the same input always yields the same output.
func Substitute(text string, vars map[string]string) string {
	if len(vars) == 0 || text == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, tok := range NewLexer(text).Tokenize() {
		switch tok.Type {
		case TokenText:
			b.WriteString(tok.Value)
		case TokenVariable:
			v, ok := vars[tok.Value]
			if !ok {
				b.WriteString(tok.Raw)
				continue
			}
			b.WriteString(format(v, tok.Format))
		}
	}
	return b.String()
}

// Variables returns the distinct variable names referenced in text, in
// order of first appearance.
func Variables(text string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, tok := range NewLexer(text).Tokenize() {
		if tok.Type == TokenVariable && !seen[tok.Value] {
			seen[tok.Value] = true
			names = append(names, tok.Value)
		}
	}
	return names
}

func format(v, f string) string {
	switch f {
	case FormatSQLString:
		parts := strings.Split(v, ",")
		for i, p := range parts {
			parts[i] = "'" + strings.ReplaceAll(p, "'", "''") + "'"
		}
		return strings.Join(parts, ",")
	case FormatCSV:
		return strings.Join(strings.Split(v, ","), ",")
	default:
		return v
	}
}

// Builtins returns the variables derived from a request's time range and
// bucket width: __from and __to (epoch milliseconds), __interval_ms and
// __interval. A zero range contributes no __from/__to.
func Builtins(r core.TimeRange, intervalMs int64) map[string]string {
	vars := make(map[string]string, 4)
	if !r.IsZero() {
		vars["__from"] = strconv.FormatInt(r.From.UnixMilli(), 10)
		vars["__to"] = strconv.FormatInt(r.To.UnixMilli(), 10)
	}
	if intervalMs > 0 {
		vars["__interval_ms"] = strconv.FormatInt(intervalMs, 10)
		vars["__interval"] = (time.Duration(intervalMs) * time.Millisecond).String()
	}
	return vars
}

// Merge layers scoped over base. Scoped values win.
func Merge(base, scoped map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(scoped))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range scoped {
		out[k] = v
	}
	return out
}
