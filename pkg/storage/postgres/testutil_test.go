package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"p2pcollector/config"
	"p2pcollector/pkg/storage/postgres"
)

// setupPostgres starts a disposable Postgres and returns its config. The
// container is terminated when the test ends.
func setupPostgres(t *testing.T) config.PostgresConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("collector"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return config.PostgresConfig{
		Host:         host,
		Port:         port.Int(),
		User:         "test",
		Password:     "test",
		DBName:       "collector",
		SSLMode:      "disable",
		MaxOpenConns: 20,
		MaxIdleConns: 5,
	}
}

func setupStore(t *testing.T) *postgres.Store {
	t.Helper()
	cfg := setupPostgres(t)
	client, err := postgres.Initialize(cfg, "dev", false, true, zap.NewNop())
	require.NoError(t, err)
	store := postgres.NewStore(client)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
