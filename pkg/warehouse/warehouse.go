// Package warehouse defines the read-only contract every warehouse backend
// satisfies. The resolution pipeline never touches a driver directly; it
// issues parameterized SELECTs through an Executor and consumes generic
// map-shaped rows, so the same pipeline runs unchanged against PostgreSQL
// in development and SQL Server in production.
package warehouse

import (
	"context"
	"fmt"
	"strconv"
)

// MaxQueryLimit is the hard cap on rows returned by Query methods.
// This protects against unbounded queries that could exhaust the server.
const MaxQueryLimit = 1000

// Executor executes SELECT statements against the financial warehouse.
// The warehouse is read-only from the engine's point of view: there is no
// Execute escape hatch, every statement goes through the bounded Query path.
//
// Each implementation owns its connection and must be closed when done.
type Executor interface {
	// Query runs a SELECT statement and returns bounded results.
	// The query is ALWAYS wrapped with a dialect-specific limit:
	//   - PostgreSQL: SELECT * FROM (query) AS _limited LIMIT n
	//   - SQL Server: SELECT TOP (n) * FROM (query) AS _limited
	//
	// Limit behavior:
	//   - limit <= 0: uses MaxQueryLimit
	//   - limit > MaxQueryLimit: capped to MaxQueryLimit
	//   - otherwise: uses the specified limit
	Query(ctx context.Context, sqlQuery string, limit int) (*Result, error)

	// QueryWithParams runs a parameterized SELECT with bounded results.
	// The SQL should use $1, $2, etc. for parameter placeholders; the params
	// slice provides values in order. SQL Server implementations convert the
	// placeholders to their native form. See Query for limit behavior.
	QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*Result, error)

	// QueryRowCount runs a single-value aggregate (typically COUNT(*)) and
	// returns the scalar. Used for the data-existence probes that decide
	// whether a metric head actually has rows for a company.
	QueryRowCount(ctx context.Context, sqlQuery string, params []any) (int64, error)

	// Ping verifies the warehouse is reachable with valid credentials.
	Ping(ctx context.Context) error

	// Close releases any resources held by the executor.
	Close() error
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "VARCHAR")
}

// Result holds the rows returned by a warehouse query.
type Result struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ScalarInt extracts a single integer from the first column of the first row.
// COUNT(*) comes back as INT8 on PostgreSQL and INT on SQL Server, and some
// drivers surface aggregates as strings or raw bytes, so all the common scan
// shapes are accepted.
func ScalarInt(res *Result) (int64, error) {
	if res == nil || res.RowCount == 0 || len(res.Rows) == 0 {
		return 0, fmt.Errorf("scalar query returned no rows")
	}
	if len(res.Columns) == 0 {
		return 0, fmt.Errorf("scalar query returned no columns")
	}

	val, ok := res.Rows[0][res.Columns[0].Name]
	if !ok {
		return 0, fmt.Errorf("scalar column %q missing from row", res.Columns[0].Name)
	}

	switch v := val.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	case nil:
		return 0, fmt.Errorf("scalar column %q is null", res.Columns[0].Name)
	default:
		return 0, fmt.Errorf("scalar column %q has unsupported type %T", res.Columns[0].Name, val)
	}
}
