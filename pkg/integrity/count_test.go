package integrity

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramdhan/mnemo/pkg/workspace"
)

func newStoreLayout(t *testing.T) *workspace.Layout {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	layout := &workspace.Layout{Root: resolved}
	require.NoError(t, layout.EnsureStateDir())
	return layout
}

func seedDB(t *testing.T, path, table string, rows int) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE IF NOT EXISTS " + table + " (id INTEGER PRIMARY KEY, payload TEXT)")
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		_, err = db.Exec("INSERT INTO "+table+" (payload) VALUES (?)", "row")
		require.NoError(t, err)
	}
}

func TestCountStores_MissingDatabases(t *testing.T) {
	layout := newStoreLayout(t)

	counts := CountStores(layout)
	assert.Equal(t, Unreadable, counts.Primary)
	assert.Equal(t, Unreadable, counts.Derived)
}

func TestCountStores_CanonicalTables(t *testing.T) {
	layout := newStoreLayout(t)
	seedDB(t, layout.PrimaryDB(), "records", 7)
	seedDB(t, layout.VectorDB(), "embeddings", 6)

	counts := CountStores(layout)
	assert.Equal(t, int64(7), counts.Primary)
	assert.Equal(t, int64(6), counts.Derived)
}

func TestCountStores_FallbackTableNames(t *testing.T) {
	layout := newStoreLayout(t)
	seedDB(t, layout.PrimaryDB(), "documents", 4)
	seedDB(t, layout.VectorDB(), "chunks", 3)

	counts := CountStores(layout)
	assert.Equal(t, int64(4), counts.Primary)
	assert.Equal(t, int64(3), counts.Derived)
}

func TestCountStores_DerivedSumFallback(t *testing.T) {
	layout := newStoreLayout(t)
	seedDB(t, layout.PrimaryDB(), "records", 2)

	// None of the expected derived tables exist; the count falls back to a
	// sum across all user tables.
	seedDB(t, layout.VectorDB(), "vectors_a", 3)
	seedDB(t, layout.VectorDB(), "vectors_b", 5)

	counts := CountStores(layout)
	assert.Equal(t, int64(2), counts.Primary)
	assert.Equal(t, int64(8), counts.Derived)
}

func TestCountStores_EmptySchemaIsUnreadable(t *testing.T) {
	layout := newStoreLayout(t)

	db, err := sql.Open("sqlite3", layout.VectorDB())
	require.NoError(t, err)
	// Force the file into existence with no user tables.
	_, err = db.Exec("CREATE TABLE t (id INTEGER); DROP TABLE t")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	counts := CountStores(layout)
	assert.Equal(t, Unreadable, counts.Derived)
}

func TestCountStores_TrueZeroIsNotUnreadable(t *testing.T) {
	layout := newStoreLayout(t)
	seedDB(t, layout.PrimaryDB(), "records", 0)
	seedDB(t, layout.VectorDB(), "embeddings", 0)

	counts := CountStores(layout)
	assert.Equal(t, int64(0), counts.Primary)
	assert.Equal(t, int64(0), counts.Derived)
}
