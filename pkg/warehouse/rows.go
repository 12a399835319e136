package warehouse

import (
	"strings"
	"time"
)

// Field returns a result column's value by name. PostgreSQL folds unquoted
// identifiers to lowercase while SQL Server preserves declared casing, so
// lookups try the exact name first and fall back to the lowercase form.
func Field(row map[string]any, column string) (any, bool) {
	if v, ok := row[column]; ok {
		return v, true
	}
	if v, ok := row[strings.ToLower(column)]; ok {
		return v, true
	}
	return nil, false
}

// FieldInt reads an integer column. Drivers surface warehouse integers as
// int64 (pgx), int32, or occasionally strings; all are accepted. Missing
// columns and NULLs report ok=false.
func FieldInt(row map[string]any, column string) (int, bool) {
	v, ok := Field(row, column)
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case int16:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	default:
		return 0, false
	}
}

// FieldFloat reads a numeric column, accepting the integer shapes as well
// since warehouse values arrive as whatever the driver picked.
func FieldFloat(row map[string]any, column string) (float64, bool) {
	v, ok := Field(row, column)
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// FieldString reads a text column. Missing columns and NULLs report
// ok=false; empty strings are valid values.
func FieldString(row map[string]any, column string) (string, bool) {
	v, ok := Field(row, column)
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

// FieldTime reads a date or timestamp column. pgx returns time.Time for
// DATE columns; string forms cover drivers that surface dates as text.
func FieldTime(row map[string]any, column string) (time.Time, bool) {
	v, ok := Field(row, column)
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	default:
		return time.Time{}, false
	}
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
