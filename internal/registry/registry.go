// Package registry tracks which documents have been ingested and at what
// content hash, so unchanged documents are skipped on subsequent runs.
//
// Three backends implement the same interface: a JSON file for single-machine
// batch runs, PostgreSQL for deployments that already carry the vector store,
// and an in-memory map for tests.
package registry

import (
	"context"
	"time"
)

// Entry records the ingestion state of one document.
type Entry struct {
	SourceID    string    `json:"source_id"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash"`
	ChunkCount  int       `json:"chunk_count"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	SourceType  string    `json:"source_type"`
	EmbeddedAt  time.Time `json:"embedding_date"`
}

// Registry persists per-document ingestion state.
type Registry interface {
	// Lookup returns the entry for sourceID. The boolean reports whether
	// an entry exists; a missing entry is not an error.
	Lookup(ctx context.Context, sourceID string) (Entry, bool, error)

	// Record upserts the entry for its SourceID.
	Record(ctx context.Context, entry Entry) error

	// Delete removes the entry for sourceID. Deleting a missing entry is
	// a no-op.
	Delete(ctx context.Context, sourceID string) error
}

// Session summarizes one ingestion run.
type Session struct {
	ID               string    `json:"session_id"`
	StartedAt        time.Time `json:"start_time"`
	FinishedAt       time.Time `json:"end_time"`
	SourcesProcessed int       `json:"sources_processed"`
	ChunksCreated    int       `json:"chunks_created"`
	Status           string    `json:"status"`
}

// SessionSink is implemented by backends that keep a run history. The
// orchestrator records sessions opportunistically via type assertion.
type SessionSink interface {
	RecordSession(ctx context.Context, session Session) error
}

// Unchanged reports whether sourceID is already recorded at contentHash.
func Unchanged(ctx context.Context, r Registry, sourceID, contentHash string) (bool, error) {
	entry, ok, err := r.Lookup(ctx, sourceID)
	if err != nil {
		return false, err
	}
	return ok && entry.ContentHash == contentHash, nil
}
