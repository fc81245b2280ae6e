package engine

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// LocalConfig holds local engine configuration.
type LocalConfig struct {
	PrimaryDBPath string
	VectorDBPath  string
	Logger        zerolog.Logger
	Provider      EmbeddingProvider
}

// Local implements Engine over two workspace-scoped SQLite databases: the
// primary record store (one row per ingested unit, authoritative) and the
// derived vector store (vec0 embeddings plus an FTS5 mirror), which may lag
// or be destroyed and rebuilt independently.
type Local struct {
	primary  *sql.DB
	derived  *sql.DB
	logger   zerolog.Logger
	provider EmbeddingProvider
}

// NewLocal opens both stores, applies pragmas and creates the schema.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.PrimaryDBPath == "" || cfg.VectorDBPath == "" {
		return nil, errors.New("primary and vector database paths are required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("embedding provider is required")
	}

	primary, err := openDB(cfg.PrimaryDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary store: %w", err)
	}

	derived, err := openDB(cfg.VectorDBPath + "?_fts5=1")
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to open derived store: %w", err)
	}

	e := &Local{
		primary:  primary,
		derived:  derived,
		logger:   cfg.Logger,
		provider: cfg.Provider,
	}
	if err := e.initSchema(); err != nil {
		primary.Close()
		derived.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return e, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (e *Local) initSchema() error {
	primarySchema := `
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			staged INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(collection, source)
		);
		CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
		CREATE INDEX IF NOT EXISTS idx_records_staged ON records(collection, staged);
	`
	if _, err := e.primary.Exec(primarySchema); err != nil {
		return err
	}

	derivedSchema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			record_id UNINDEXED,
			collection UNINDEXED,
			content,
			tokenize='porter unicode61'
		);

		CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := e.derived.Exec(derivedSchema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(
			record_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, e.provider.Dimension())
	if _, err := e.derived.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// Ingest stages one unit of content under (collection, source). Re-ingesting
// the same source upserts the record and re-stages it so the next Commit
// rebuilds its derived rows.
func (e *Local) Ingest(ctx context.Context, collection, source, text string) error {
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	now := time.Now().Unix()

	var existingID string
	err := e.primary.QueryRowContext(ctx,
		"SELECT id FROM records WHERE collection = ? AND source = ?",
		collection, source,
	).Scan(&existingID)

	switch {
	case err == nil:
		_, err = e.primary.ExecContext(ctx,
			"UPDATE records SET content = ?, content_hash = ?, staged = 1, updated_at = ? WHERE id = ?",
			text, contentHash, now, existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to update record: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate record id: %w", err)
		}
		_, err = e.primary.ExecContext(ctx,
			"INSERT INTO records (id, collection, source, content, content_hash, staged, created_at, updated_at) VALUES (?, ?, ?, ?, ?, 1, ?, ?)",
			id, collection, source, text, contentHash, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	default:
		return fmt.Errorf("failed to look up record: %w", err)
	}

	e.logger.Debug().Str("source", source).Msg("Record staged")
	return nil
}

type stagedRecord struct {
	id          string
	content     string
	contentHash string
}

// Commit materializes every staged record of a collection into the derived
// store, then clears its staged flag. If anything fails no staged flag is
// cleared, so a retry redoes the whole batch.
func (e *Local) Commit(ctx context.Context, collection string) error {
	rows, err := e.primary.QueryContext(ctx,
		"SELECT id, content, content_hash FROM records WHERE collection = ? AND staged = 1",
		collection,
	)
	if err != nil {
		return fmt.Errorf("failed to list staged records: %w", err)
	}

	var staged []stagedRecord
	for rows.Next() {
		var r stagedRecord
		if err := rows.Scan(&r.id, &r.content, &r.contentHash); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan staged record: %w", err)
		}
		staged = append(staged, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate staged records: %w", err)
	}
	if len(staged) == 0 {
		return nil
	}

	tx, err := e.derived.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin derived transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range staged {
		embedding, err := e.embeddingFor(ctx, tx, r.contentHash, r.content)
		if err != nil {
			return fmt.Errorf("failed to embed record %s: %w", r.id, err)
		}

		embeddingJSON, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO embeddings (record_id, embedding) VALUES (?, ?)",
			r.id, string(embeddingJSON),
		); err != nil {
			return fmt.Errorf("failed to store embedding: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM records_fts WHERE record_id = ?", r.id); err != nil {
			return fmt.Errorf("failed to clear fts row: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO records_fts (record_id, collection, content) VALUES (?, ?, ?)",
			r.id, collection, r.content,
		); err != nil {
			return fmt.Errorf("failed to index record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit derived rows: %w", err)
	}

	if _, err := e.primary.ExecContext(ctx,
		"UPDATE records SET staged = 0 WHERE collection = ? AND staged = 1",
		collection,
	); err != nil {
		return fmt.Errorf("failed to clear staged flags: %w", err)
	}

	e.logger.Debug().Int("records", len(staged)).Msg("Batch committed")
	return nil
}

// embeddingFor returns the embedding for content, from the cache when the
// content hash is known and from the provider otherwise.
func (e *Local) embeddingFor(ctx context.Context, tx *sql.Tx, contentHash, content string) ([]float32, error) {
	var cached []byte
	err := tx.QueryRowContext(ctx,
		"SELECT embedding FROM embedding_cache WHERE content_hash = ?", contentHash,
	).Scan(&cached)
	if err == nil {
		var embedding []float32
		if err := json.Unmarshal(cached, &embedding); err == nil && len(embedding) == e.provider.Dimension() {
			return embedding, nil
		}
	}

	embedding, err := e.provider.GenerateEmbedding(ctx, content)
	if err != nil {
		return nil, err
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO embedding_cache (content_hash, embedding, dimension, created_at) VALUES (?, ?, ?, ?)",
		contentHash, embeddingJSON, len(embedding), time.Now().Unix(),
	); err != nil {
		return nil, err
	}
	return embedding, nil
}

// Reset destroys all derived rows and staged records for a collection.
// Committed primary records survive; the embedding cache is retained since
// it is recomputable and keyed by content hash.
func (e *Local) Reset(ctx context.Context, collection string) error {
	rows, err := e.primary.QueryContext(ctx,
		"SELECT id FROM records WHERE collection = ?", collection,
	)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate records: %w", err)
	}

	tx, err := e.derived.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin derived transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE record_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete embedding: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM records_fts WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("failed to delete fts rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}

	if _, err := e.primary.ExecContext(ctx,
		"DELETE FROM records WHERE collection = ? AND staged = 1", collection,
	); err != nil {
		return fmt.Errorf("failed to delete staged records: %w", err)
	}

	e.logger.Info().Str("collection", collection).Msg("Derived store reset")
	return nil
}

// Search enumerates previously committed content by keyword relevance.
func (e *Local) Search(ctx context.Context, collection, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = 10
	}

	rows, err := e.derived.QueryContext(ctx, `
		SELECT content
		FROM records_fts
		WHERE records_fts MATCH ? AND collection = ?
		ORDER BY bm25(records_fts)
		LIMIT ?
	`, query, collection, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		results = append(results, content)
	}
	return results, rows.Err()
}

// Close closes both stores.
func (e *Local) Close() error {
	perr := e.primary.Close()
	derr := e.derived.Close()
	if perr != nil {
		return perr
	}
	return derr
}
