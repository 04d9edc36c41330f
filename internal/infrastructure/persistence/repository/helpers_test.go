package repository

import (
	"path/filepath"
	"testing"

	"github.com/garyjia/pmajay-coordination/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/pmajay-coordination/pkg/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "coordination.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Migrate())
	return sqlite.NewDB(db.DB, logger)
}
