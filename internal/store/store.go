// Package store persists documents and their embedded chunks in PostgreSQL
// with pgvector.
//
// Re-ingestion uses delete-then-insert semantics inside one transaction: the
// old document row (and its chunks, via cascade) disappears and the new rows
// appear atomically, so readers never observe a half-replaced document.
//
// Store is safe for concurrent use by multiple goroutines.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/wellnessgrid/medrag/internal/log"
)

// searchTimeout bounds a single vector search so a slow query cannot block
// API handlers indefinitely.
const searchTimeout = 10 * time.Second

// ErrEmptyChunks indicates an attempt to persist a document with no chunks.
var ErrEmptyChunks = errors.New("document has no chunks")

// Document is the persisted form of one ingested source document.
type Document struct {
	ID       uuid.UUID
	SourceID string
	Title    string
	Content  string
	Source   string
	Topic    string
	URL      string
	Metadata map[string]string
}

// Chunk is one embedded slice of a document's content.
type Chunk struct {
	Index     int
	Text      string
	Embedding []float32
}

// SearchResult is one chunk returned from a similarity search.
type SearchResult struct {
	DocumentID uuid.UUID
	SourceID   string
	Title      string
	URL        string
	ChunkIndex int
	Text       string
	Similarity float64
	Metadata   map[string]string
}

// Store provides document and chunk persistence on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPool creates a pgx pool with pgvector types registered on every
// connection, and verifies connectivity.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// New creates a Store. The pool is owned by the caller; a nil logger
// discards output.
func New(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// ReplaceDocument atomically replaces a document and its chunks. Any
// existing document with the same source id is deleted first; its chunks go
// with it via cascade. Either all rows land or none do.
func (s *Store) ReplaceDocument(ctx context.Context, doc Document, chunks []Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyChunks, doc.SourceID)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encoding document metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Warn("transaction rollback failed", "source_id", doc.SourceID, "error", rbErr)
			}
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE source_id = $1`, doc.SourceID); err != nil {
		return fmt.Errorf("deleting previous document %s: %w", doc.SourceID, err)
	}

	const insertDoc = `
		INSERT INTO documents
			(id, source_id, title, content, source, topic, url, metadata, content_length)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.Exec(ctx, insertDoc,
		doc.ID, doc.SourceID, doc.Title, doc.Content, doc.Source, doc.Topic,
		doc.URL, metadataJSON, len(doc.Content),
	); err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.SourceID, err)
	}

	const insertChunk = `
		INSERT INTO document_chunks (document_id, chunk_index, chunk_content, embedding)
		VALUES ($1, $2, $3, $4)`
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(insertChunk, doc.ID, c.Index, c.Text, pgvector.NewVector(c.Embedding))
	}
	results := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("inserting chunks for %s: %w", doc.SourceID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing chunk batch for %s: %w", doc.SourceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing document %s: %w", doc.SourceID, err)
	}
	committed = true

	s.logger.Debug("document replaced", "source_id", doc.SourceID, "chunks", len(chunks))
	return nil
}

// DeleteDocument removes a document and its chunks by source id. Deleting an
// unknown source id is a no-op.
func (s *Store) DeleteDocument(ctx context.Context, sourceID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("deleting document %s: %w", sourceID, err)
	}
	return nil
}

// SearchChunks returns the topK chunks closest to the query embedding by
// cosine distance, joined with their documents.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	const query = `
		SELECT d.id, d.source_id, d.title, d.url, d.metadata,
		       c.chunk_index, c.chunk_content,
		       1 - (c.embedding <=> $1) AS similarity
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		ORDER BY c.embedding <=> $1
		LIMIT $2`

	rows, err := s.pool.Query(queryCtx, query, pgvector.NewVector(embedding), topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var metadataJSON []byte
		if err := rows.Scan(
			&r.DocumentID, &r.SourceID, &r.Title, &r.URL, &metadataJSON,
			&r.ChunkIndex, &r.Text, &r.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
				s.logger.Warn("unparseable document metadata", "document_id", r.DocumentID, "error", err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search results: %w", err)
	}
	return results, nil
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM documents`)
}

// CountChunks returns the number of stored chunks.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM document_chunks`)
}

func (s *Store) count(ctx context.Context, query string) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	if n > math.MaxInt {
		return 0, fmt.Errorf("row count %d exceeds platform int capacity", n)
	}
	return int(n), nil
}

// Clear removes every document and chunk. Used by the ingest command's
// --clear-db flag before a full rebuild.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE document_chunks, documents`); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}
	s.logger.Info("store cleared")
	return nil
}
