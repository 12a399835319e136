// Package postgres implements the warehouse executor on PostgreSQL.
// This is the backend used in development, tests, and CI, where the
// warehouse schema is provisioned by migrations.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
)

// Executor provides PostgreSQL query execution over a pgx pool.
type Executor struct {
	pool      *pgxpool.Pool
	ownedPool bool // true if we created the pool and must close it
}

// NewExecutor connects a new pool using the given connection string.
func NewExecutor(ctx context.Context, connString string) (*Executor, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres warehouse: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres warehouse: %w", err)
	}

	return &Executor{pool: pool, ownedPool: true}, nil
}

// NewExecutorFromPool wraps an existing pool. The caller keeps ownership of
// the pool; Close becomes a no-op. Used by tests that share one container
// pool across packages.
func NewExecutorFromPool(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// Query runs a SELECT statement and returns bounded results.
// See warehouse.Executor.Query for limit behavior.
func (e *Executor) Query(ctx context.Context, sqlQuery string, limit int) (*warehouse.Result, error) {
	return e.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a parameterized SELECT with bounded results.
// pgx handles $1-style placeholders natively, preventing SQL injection.
func (e *Executor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*warehouse.Result, error) {
	effectiveLimit := limit
	if effectiveLimit <= 0 || effectiveLimit > warehouse.MaxQueryLimit {
		effectiveLimit = warehouse.MaxQueryLimit
	}
	queryToRun := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, effectiveLimit)

	rows, err := e.pool.Query(ctx, queryToRun, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]warehouse.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = warehouse.ColumnInfo{
			Name: string(fd.Name),
			Type: pgTypeNameFromOID(fd.DataTypeOID),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		rowMap := make(map[string]any)
		for i, col := range columns {
			rowMap[col.Name] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &warehouse.Result{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// QueryRowCount runs a single-value aggregate and returns the scalar.
func (e *Executor) QueryRowCount(ctx context.Context, sqlQuery string, params []any) (int64, error) {
	res, err := e.QueryWithParams(ctx, sqlQuery, params, 1)
	if err != nil {
		return 0, err
	}
	return warehouse.ScalarInt(res)
}

// Ping verifies the warehouse is reachable.
func (e *Executor) Ping(ctx context.Context) error {
	return e.pool.Ping(ctx)
}

// Close releases the pool if this executor created it.
func (e *Executor) Close() error {
	if e.ownedPool && e.pool != nil {
		e.pool.Close()
	}
	return nil
}

// pgTypeNameFromOID maps PostgreSQL type OIDs to human-readable type names.
// This covers the types the warehouse schema actually uses; unknown types
// return "UNKNOWN".
func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case 16:
		return "BOOL"
	case 20:
		return "INT8"
	case 21:
		return "INT2"
	case 23:
		return "INT4"
	case 25:
		return "TEXT"
	case 700:
		return "FLOAT4"
	case 701:
		return "FLOAT8"
	case 1042:
		return "BPCHAR"
	case 1043:
		return "VARCHAR"
	case 1082:
		return "DATE"
	case 1114:
		return "TIMESTAMP"
	case 1184:
		return "TIMESTAMPTZ"
	case 1700:
		return "NUMERIC"
	case 2950:
		return "UUID"
	case 3802:
		return "JSONB"
	default:
		return "UNKNOWN"
	}
}

// Ensure Executor implements warehouse.Executor at compile time.
var _ warehouse.Executor = (*Executor)(nil)
