package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestPostgresStoreConformance spins up a disposable postgres container
// and runs the gormStore against it through the same golang-migrate path
// NewPostgres uses in production. The container belongs to this test
// alone and is terminated in its cleanup.
func TestPostgresStoreConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("filegrid_test"),
		postgres.WithUsername("filegrid_test"),
		postgres.WithPassword("filegrid_test"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	runConformanceSuite(t, s)
}
