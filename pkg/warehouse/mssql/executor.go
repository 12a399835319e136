// Package mssql implements the warehouse executor on SQL Server, the
// backend the production financial warehouse runs on.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	// Registers the "sqlserver" database/sql driver.
	_ "github.com/microsoft/go-mssqldb"

	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
)

// Config contains SQL Server connection options.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int // seconds
}

// Validate checks the config has everything needed for a SQL auth connection.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

// connectionString builds a sqlserver:// URL for the go-mssqldb driver.
func (c *Config) connectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)

	if c.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", c.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		query.Encode(),
	)
}

// Executor provides SQL Server query execution.
type Executor struct {
	config *Config
	db     *sql.DB
}

// NewExecutor opens a SQL Server connection and verifies it.
func NewExecutor(ctx context.Context, cfg *Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("sqlserver", cfg.connectionString())
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlserver warehouse: %w", err)
	}

	return &Executor{config: cfg, db: db}, nil
}

// Query runs a SELECT statement and returns bounded results.
// See warehouse.Executor.Query for limit behavior.
func (e *Executor) Query(ctx context.Context, sqlQuery string, limit int) (*warehouse.Result, error) {
	return e.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a parameterized SELECT with bounded results.
// The SQL uses $1, $2, etc. placeholders (PostgreSQL style); these are
// converted to SQL Server's @p1, @p2 named parameters before execution.
func (e *Executor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*warehouse.Result, error) {
	convertedQuery := convertPositionalParams(sqlQuery)

	effectiveLimit := limit
	if effectiveLimit <= 0 || effectiveLimit > warehouse.MaxQueryLimit {
		effectiveLimit = warehouse.MaxQueryLimit
	}
	queryToRun := fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", effectiveLimit, convertedQuery)

	namedParams := make([]any, len(params))
	for i, param := range params {
		namedParams[i] = sql.Named(fmt.Sprintf("p%d", i+1), param)
	}

	rows, err := e.db.QueryContext(ctx, queryToRun, namedParams...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute parameterized query: %w", err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]warehouse.ColumnInfo, len(columnNames))
	for i, colName := range columnNames {
		columns[i] = warehouse.ColumnInfo{
			Name: colName,
			Type: mapSQLServerType(columnTypes[i].DatabaseTypeName()),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any)
		for i, col := range columnNames {
			val := values[i]

			// The driver returns text columns as []byte; convert to string
			// so downstream matching sees comparable values.
			if b, ok := val.([]byte); ok {
				if isStringType(columnTypes[i].DatabaseTypeName()) {
					val = string(b)
				}
			}

			rowMap[col] = val
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
	return e.db.PingContext(ctx)
}

// Close releases the database connection.
func (e *Executor) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

var positionalParamPattern = regexp.MustCompile(`\$(\d+)`)

// convertPositionalParams converts PostgreSQL-style positional parameters
// ($1, $2, ...) to SQL Server named parameters (@p1, @p2, ...).
func convertPositionalParams(query string) string {
	return positionalParamPattern.ReplaceAllStringFunc(query, func(match string) string {
		num, err := strconv.Atoi(match[1:])
		if err != nil {
			return match
		}
		return fmt.Sprintf("@p%d", num)
	})
}

// mapSQLServerType maps SQL Server type names to the standard names the
// rest of the engine expects, matching the PostgreSQL executor's output.
func mapSQLServerType(sqlServerType string) string {
	switch strings.ToUpper(sqlServerType) {
	case "TINYINT", "SMALLINT":
		return "INT2"
	case "INT":
		return "INT4"
	case "BIGINT":
		return "INT8"
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return "NUMERIC"
	case "FLOAT":
		return "FLOAT8"
	case "REAL":
		return "FLOAT4"
	case "CHAR", "NCHAR":
		return "BPCHAR"
	case "VARCHAR", "NVARCHAR":
		return "VARCHAR"
	case "TEXT", "NTEXT":
		return "TEXT"
	case "DATE":
		return "DATE"
	case "DATETIME", "DATETIME2", "SMALLDATETIME":
		return "TIMESTAMP"
	case "DATETIMEOFFSET":
		return "TIMESTAMPTZ"
	case "BIT":
		return "BOOL"
	case "UNIQUEIDENTIFIER":
		return "UUID"
	default:
		return strings.ToUpper(sqlServerType)
	}
}

// isStringType returns true if the type is a string type in SQL Server.
func isStringType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return true
	}
	return false
}

// Ensure Executor implements warehouse.Executor at compile time.
var _ warehouse.Executor = (*Executor)(nil)
