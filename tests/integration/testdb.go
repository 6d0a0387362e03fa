// Package integration runs the loyalty flows against a real PostgreSQL started
// with testcontainers. The schema comes from the embedded migrations.
package integration

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/loyalty/backend/internal/infrastructure/config"
	"github.com/loyalty/backend/internal/infrastructure/migration"
	"github.com/loyalty/backend/internal/infrastructure/persistence"
	"github.com/loyalty/backend/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	gormlogger "gorm.io/gorm/logger"
)

// ledgerFixture is the PostgreSQL container shared by every test in the package.
// It is started and migrated once; tests isolate themselves with unique
// customer ids instead of truncating tables.
type ledgerFixture struct {
	once      sync.Once
	container *tcpostgres.PostgresContainer
	dsn       string
	err       error
}

var fixture ledgerFixture

func (f *ledgerFixture) start() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f.container, f.err = tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("loyalty_test"),
		tcpostgres.WithUsername("loyalty"),
		tcpostgres.WithPassword("loyalty"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if f.err != nil {
		return
	}
	if f.dsn, f.err = f.container.ConnectionString(ctx, "sslmode=disable"); f.err != nil {
		return
	}
	f.err = migration.Apply(f.dsn, migrations.FS, zap.NewNop())
}

// terminate stops the container if one was started
func (f *ledgerFixture) terminate() {
	if f.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = f.container.Terminate(ctx)
}

// openLedger connects to the shared database with the service's own GORM
// settings. The connection is closed when the test ends.
func openLedger(t *testing.T) *persistence.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test needs docker")
	}

	fixture.once.Do(fixture.start)
	require.NoError(t, fixture.err, "start migrated postgres")

	level := gormlogger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = gormlogger.Info
	}
	db, err := persistence.Open(gormpostgres.Open(fixture.dsn), &config.DatabaseConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
	}, gormlogger.Default.LogMode(level))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
