package database

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "data", "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestMigrate_AppliesEmbeddedSchemaOnce(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	require.NoError(t, m.Migrate())
	require.NoError(t, m.Migrate())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 3, count)

	for _, table := range []string{"workflows", "workflow_history", "agencies", "notifications"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestRunMigrations_FromDirectory(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_second.sql"), []byte("CREATE TABLE b (id INTEGER);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_first.sql"), []byte("CREATE TABLE a (id INTEGER);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	require.NoError(t, NewMigrator(db, zap.NewNop()).RunMigrations(dir))

	rows, err := db.Query("SELECT version, name FROM schema_migrations ORDER BY version")
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var v int
		var n string
		require.NoError(t, rows.Scan(&v, &n))
		names = append(names, n)
	}
	assert.Equal(t, []string{"first", "second"}, names)
}

func TestRunMigrations_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_broken.sql"), []byte("CREATE TABL nope;"), 0o644))

	err := NewMigrator(db, zap.NewNop()).RunMigrations(dir)
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Zero(t, count)
}

func TestLoadMigrations(t *testing.T) {
	t.Run("rejects bad file names", func(t *testing.T) {
		_, err := loadMigrations(fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}})
		assert.Error(t, err)
	})

	t.Run("rejects duplicate versions", func(t *testing.T) {
		_, err := loadMigrations(fstest.MapFS{
			"001_a.sql": {Data: []byte("SELECT 1;")},
			"001_b.sql": {Data: []byte("SELECT 1;")},
		})
		assert.Error(t, err)
	})

	t.Run("sorts by version", func(t *testing.T) {
		got, err := loadMigrations(fstest.MapFS{
			"010_late.sql":  {Data: []byte("SELECT 1;")},
			"002_early.sql": {Data: []byte("SELECT 1;")},
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 2, got[0].Version)
		assert.Equal(t, "late", got[1].Name)
	})
}
