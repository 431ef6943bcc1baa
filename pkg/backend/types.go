package backend

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// FieldTypeFor maps a driver database type name to a field type.
// The second result is false for names it does not recognise.
func FieldTypeFor(dbType string) (core.FieldType, bool) {
	name := strings.ToUpper(strings.TrimSpace(dbType))
	// Strip precision and array markers: NUMERIC(10,2), _INT4, DECIMAL(18,3).
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "_")

	switch name {
	case "":
		return "", false
	case "DATE", "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP_TZ",
		"TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS", "DATETIME", "TIME", "TIMETZ":
		return core.FieldTypeTime, true
	case "BOOL", "BOOLEAN":
		return core.FieldTypeBool, true
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "SMALLINT", "BIGINT", "TINYINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT",
		"FLOAT", "FLOAT4", "FLOAT8", "REAL", "DOUBLE", "DOUBLE PRECISION", "DECIMAL", "NUMERIC":
		return core.FieldTypeNumber, true
	case "CHAR", "VARCHAR", "TEXT", "BPCHAR", "NAME", "UUID", "JSON", "JSONB", "ENUM", "BLOB", "BYTEA":
		return core.FieldTypeString, true
	}
	if strings.HasPrefix(name, "INTERVAL") {
		return core.FieldTypeString, true
	}
	return "", false
}

// InferFieldType picks a field type from the first non-null value.
func InferFieldType(values []any) core.FieldType {
	for _, v := range values {
		switch v.(type) {
		case nil:
			continue
		case time.Time:
			return core.FieldTypeTime
		case bool:
			return core.FieldTypeBool
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return core.FieldTypeNumber
		default:
			return core.FieldTypeString
		}
	}
	return core.FieldTypeString
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ConvertValue normalises a scanned driver value for a field of type ft.
// Numbers become float64, times time.Time, text string. Values that cannot
// be converted become nil.
func ConvertValue(v any, ft core.FieldType) any {
	if v == nil {
		return nil
	}
	switch ft {
	case core.FieldTypeNumber:
		f, ok := toFloat(v)
		if !ok {
			return nil
		}
		return f
	case core.FieldTypeTime:
		switch t := v.(type) {
		case time.Time:
			return t
		case int64:
			return time.UnixMilli(t).UTC()
		case []byte:
			return parseTime(string(t))
		case string:
			return parseTime(t)
		}
		return nil
	case core.FieldTypeBool:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		case []byte:
			parsed, err := strconv.ParseBool(string(b))
			if err != nil {
				return nil
			}
			return parsed
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil
			}
			return parsed
		}
		return nil
	default:
		switch s := v.(type) {
		case string:
			return s
		case []byte:
			return string(s)
		case time.Time:
			return s.Format(time.RFC3339Nano)
		}
		return fmt.Sprint(v)
	}
}

func parseTime(s string) any {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case fmt.Stringer:
		// Decimal types from drivers (duckdb.Decimal, pgtype.Numeric) print their value.
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	}
	return 0, false
}
