// Package engine defines the knowledge-store engine this tool drives, and
// ships a local SQLite-backed implementation of it.
package engine

import "context"

// Engine is the external collaborator contract. Ingest stages one unit of
// content; Commit materializes staged content into queryable, derived form
// (expensive, so callers batch it); Reset destroys all derived and staged
// data for a collection; Search enumerates previously committed content.
type Engine interface {
	Ingest(ctx context.Context, collection, source, text string) error
	Commit(ctx context.Context, collection string) error
	Reset(ctx context.Context, collection string) error
	Search(ctx context.Context, collection, query string, topK int) ([]string, error)
}

// DefaultCollection is used when no collection is configured.
const DefaultCollection = "workspace"
