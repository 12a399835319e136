// Package testhelpers provides shared infrastructure for integration tests:
// a PostgreSQL warehouse container with the schema migrated and a small
// fixture dataset loaded.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for golang-migrate
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/database"
)

// WarehouseImage is the PostgreSQL image used for warehouse integration tests.
const WarehouseImage = "postgres:16-alpine"

// WarehouseDB holds a shared warehouse container with migrations applied and
// fixture data loaded.
type WarehouseDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedWarehouse     *WarehouseDB
	sharedWarehouseOnce sync.Once
	sharedWarehouseErr  error
)

// GetWarehouseDB returns a shared PostgreSQL warehouse for integration tests.
// The container is created once per test binary, migrated to the latest
// schema, and seeded with the fixture dataset from fixtures.go. Tests share
// the dataset and must not mutate fixture rows; rows inserted by a test
// should use ids outside the fixture ranges and be cleaned up by the test.
func GetWarehouseDB(t *testing.T) *WarehouseDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedWarehouseOnce.Do(func() {
		sharedWarehouse, sharedWarehouseErr = setupWarehouse()
	})

	if sharedWarehouseErr != nil {
		t.Fatalf("Failed to setup warehouse database: %v", sharedWarehouseErr)
	}

	return sharedWarehouse
}

func setupWarehouse() (*WarehouseDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        WarehouseImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "warehouse_test",
			"POSTGRES_USER":     "finsight",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The official postgres image restarts once during init, so wait for
		// the second ready line.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start warehouse container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://finsight:test_password@%s:%s/warehouse_test?sslmode=disable",
		host, port.Port())

	// golang-migrate drives a database/sql connection.
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, MigrationsDir(), zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := seedWarehouse(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to seed warehouse fixtures: %w", err)
	}

	return &WarehouseDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}

// MigrationsDir resolves the migrations directory relative to this source
// file, so integration tests find it regardless of which package runs them.
func MigrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")
}
