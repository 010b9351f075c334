package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "m.db")+"?_foreign_keys=ON")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var (
	createItems = Migration{Version: 1, Description: "items", Up: `CREATE TABLE items (id TEXT PRIMARY KEY)`}
	addName     = Migration{Version: 2, Description: "item names", Up: `ALTER TABLE items ADD COLUMN name TEXT NOT NULL DEFAULT ''`}
)

func TestApplyInVersionOrder(t *testing.T) {
	db := openDB(t)
	// Registered out of order on purpose.
	m := NewManager(addName, createItems)
	assert.Equal(t, 2, m.Latest())

	n, err := m.ApplySQLite(db)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = db.Exec(`INSERT INTO items (id, name) VALUES ('a', 'alpha')`)
	require.NoError(t, err)
}

func TestApplyIsIdempotent(t *testing.T) {
	db := openDB(t)
	m := NewManager(createItems)
	_, err := m.ApplySQLite(db)
	require.NoError(t, err)

	m.Register(addName)
	n, err := m.ApplySQLite(db)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the new migration runs")

	n, err = m.ApplySQLite(db)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailedMigrationRollsBack(t *testing.T) {
	db := openDB(t)
	bad := Migration{Version: 2, Description: "broken", Up: `CREATE TABLE items (id TEXT)`}
	_, err := NewManager(createItems, bad).ApplySQLite(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")

	v, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
