// Package integrity checks the primary record store and the derived
// embedding store of a workspace against each other.
package integrity

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ramdhan/mnemo/pkg/workspace"
)

// Unreadable is the sentinel count meaning the underlying store is missing,
// empty of recognizable structure, or unreadable. Distinct from a true zero.
const Unreadable int64 = -1

// Count pairs the primary record count with the derived row count for one
// workspace. Produced fresh on every evaluation, never persisted on its own.
type Count struct {
	Primary int64 `json:"primary_count"`
	Derived int64 `json:"derived_count"`
}

// Table candidates, most authoritative first. The derived list ends at the
// vec0 shadow table so the count works even without the vec module loaded.
var (
	primaryTables = []string{"records", "documents", "entries"}
	derivedTables = []string{"embeddings", "embeddings_rowids", "chunks"}
)

// CountStores reads both stores of a workspace. Either side may come back
// Unreadable; callers must treat that differently from zero.
func CountStores(l *workspace.Layout) Count {
	return Count{
		Primary: countFirst(l.PrimaryDB(), primaryTables, false),
		Derived: countFirst(l.VectorDB(), derivedTables, true),
	}
}

// countFirst returns the row count of the first readable candidate table.
// With sumFallback set, a workspace whose expected tables are all absent
// falls back to a sum across every user table: less precise, but a usable
// non-zero indicator.
func countFirst(dbPath string, candidates []string, sumFallback bool) int64 {
	if _, err := os.Stat(dbPath); err != nil {
		return Unreadable
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return Unreadable
	}
	defer db.Close()

	for _, table := range candidates {
		var n int64
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n); err == nil {
			return n
		}
	}

	if sumFallback {
		if n, err := sumAllTables(db); err == nil {
			return n
		}
	}

	return Unreadable
}

// sumAllTables adds up the rows of every non-internal table.
func sumAllTables(db *sql.DB) (int64, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\'`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 0, fmt.Errorf("no tables found")
	}

	var total int64
	counted := 0
	for _, name := range names {
		var n int64
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&n); err != nil {
			// Virtual tables whose module is not loaded are skipped.
			continue
		}
		total += n
		counted++
	}
	if counted == 0 {
		return 0, fmt.Errorf("no readable tables")
	}
	return total, nil
}
