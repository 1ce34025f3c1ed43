package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/config"
	"github.com/spec-kit/change-service/internal/persistence"
	"github.com/spec-kit/change-service/internal/repository"
	"github.com/spec-kit/change-service/internal/repository/repotest"
)

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("CHANGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHANGE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pg, err := persistence.NewPostgres(ctx, config.PostgresConfig{DSN: dsn, MaxConns: 4, MinConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	require.NoError(t, persistence.RunMigrations(ctx, pg.PoolHandle(), zap.NewNop()))

	repotest.RunStoreContract(t, repository.NewPostgresStore(pg.PoolHandle()))
}
