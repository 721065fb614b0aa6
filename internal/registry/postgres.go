package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps registry entries in the ingestion_registry table, next to
// the documents they describe. Useful when several machines share one
// database and a local JSON file would drift.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres registry on an existing pool. The pool is
// owned by the caller.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Lookup(ctx context.Context, sourceID string) (Entry, bool, error) {
	const query = `
		SELECT source_id, title, content_hash, chunk_count,
		       category, subcategory, source_type, embedded_at
		FROM ingestion_registry
		WHERE source_id = $1`

	var entry Entry
	err := p.pool.QueryRow(ctx, query, sourceID).Scan(
		&entry.SourceID, &entry.Title, &entry.ContentHash, &entry.ChunkCount,
		&entry.Category, &entry.Subcategory, &entry.SourceType, &entry.EmbeddedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("looking up registry entry %s: %w", sourceID, err)
	}
	return entry, true, nil
}

func (p *Postgres) Record(ctx context.Context, entry Entry) error {
	const query = `
		INSERT INTO ingestion_registry
			(source_id, title, content_hash, chunk_count,
			 category, subcategory, source_type, embedded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_id) DO UPDATE SET
			title = EXCLUDED.title,
			content_hash = EXCLUDED.content_hash,
			chunk_count = EXCLUDED.chunk_count,
			category = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory,
			source_type = EXCLUDED.source_type,
			embedded_at = EXCLUDED.embedded_at`

	_, err := p.pool.Exec(ctx, query,
		entry.SourceID, entry.Title, entry.ContentHash, entry.ChunkCount,
		entry.Category, entry.Subcategory, entry.SourceType, entry.EmbeddedAt,
	)
	if err != nil {
		return fmt.Errorf("recording registry entry %s: %w", entry.SourceID, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, sourceID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM ingestion_registry WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("deleting registry entry %s: %w", sourceID, err)
	}
	return nil
}
