// Package testhelpers starts a disposable PostgreSQL for audit store tests
package testhelpers

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ajitpratap0/finadvisor/internal/db"
)

// PostgresContainer holds the container and a pool connected to it
type PostgresContainer struct {
	Container     *postgres.PostgresContainer
	ConnectionStr string
	DB            *db.DB
	t             *testing.T
}

// SetupTestDatabase starts PostgreSQL and connects a pool. The test is
// skipped in -short mode or when no container runtime is reachable.
func SetupTestDatabase(t *testing.T) *PostgresContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("finadvisor_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	database, err := db.New(ctx, connStr, 5)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to connect: %v", err)
	}

	tc := &PostgresContainer{
		Container:     container,
		ConnectionStr: connStr,
		DB:            database,
		t:             t,
	}
	t.Cleanup(tc.Cleanup)

	return tc
}

// ApplyMigrations runs the repository migrations through the migrator
func (tc *PostgresContainer) ApplyMigrations(dir string) (int, error) {
	tc.t.Helper()

	migrator, closeDB, err := db.OpenMigrator(context.Background(), tc.ConnectionStr, dir)
	if err != nil {
		return 0, err
	}
	defer func() { _ = closeDB() }()

	return migrator.Migrate(context.Background())
}

// Cleanup closes the pool and terminates the container
func (tc *PostgresContainer) Cleanup() {
	if tc.DB != nil {
		tc.DB.Close()
	}
	if tc.Container != nil {
		if err := tc.Container.Terminate(context.Background()); err != nil {
			tc.t.Logf("Failed to terminate container: %v", err)
		}
	}
}
