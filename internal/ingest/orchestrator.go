package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wellnessgrid/medrag/internal/chunk"
	"github.com/wellnessgrid/medrag/internal/log"
	"github.com/wellnessgrid/medrag/internal/model"
	"github.com/wellnessgrid/medrag/internal/registry"
	"github.com/wellnessgrid/medrag/internal/store"
)

// Default pipeline parameters, used when Options leaves them zero.
const (
	DefaultEmbedBatchSize   = 32
	DefaultMinContentLength = 50
)

// DocumentStore persists a document with its embedded chunks atomically.
type DocumentStore interface {
	ReplaceDocument(ctx context.Context, doc store.Document, chunks []store.Chunk) error
}

// Options configures an ingestion run.
type Options struct {
	MaxChunkSize     int
	ChunkOverlap     int
	MinContentLength int
	EmbedBatchSize   int
	Dimension        int

	// Force re-ingests documents even when their content hash is
	// unchanged in the registry.
	Force bool

	// Workers sets pipeline parallelism. Values below 1 mean sequential.
	Workers int

	// OnResult, when set, is called once per document as results arrive.
	// Calls are serialized.
	OnResult func(Result)
}

// Orchestrator drives documents through hash, dedup, chunk, embed and
// persist stages.
type Orchestrator struct {
	store    DocumentStore
	embedder model.Embedder
	registry registry.Registry
	splitter *chunk.Splitter
	opts     Options
	logger   log.Logger
}

// New creates an Orchestrator. The chunking parameters are validated here so
// a misconfigured run fails before any document is touched.
func New(st DocumentStore, embedder model.Embedder, reg registry.Registry, opts Options, logger log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if opts.MinContentLength <= 0 {
		opts.MinContentLength = DefaultMinContentLength
	}

	splitter, err := chunk.NewSplitter(opts.MaxChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("configuring chunker: %w", err)
	}

	return &Orchestrator{
		store:    st,
		embedder: embedder,
		registry: reg,
		splitter: splitter,
		opts:     opts,
		logger:   logger,
	}, nil
}

// Run processes documents and returns per-document results in input order
// plus aggregated stats. A cancelled context stops dispatching new documents;
// documents already in flight finish. A dimension mismatch from the embedder
// aborts the whole run: the serving model no longer matches the schema, so
// nothing further may be persisted.
func (o *Orchestrator) Run(ctx context.Context, docs []Document) (Stats, []Result, error) {
	stats := Stats{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
	o.logger.Info("ingestion run started", "run_id", stats.RunID, "documents", len(docs))

	results := make([]Result, len(docs))
	seen := newHashSet()

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	var mu sync.Mutex
	deliver := func(i int, r Result) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = r
		if o.opts.OnResult != nil {
			o.opts.OnResult(r)
		}
		if errors.Is(r.Err, model.ErrDimensionMismatch) {
			cancelRun(r.Err)
		}
	}

	workers := o.opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(docs) {
		workers = len(docs)
	}

	if workers <= 1 {
		for i, doc := range docs {
			if runCtx.Err() != nil {
				break
			}
			deliver(i, o.processDocument(runCtx, doc, seen))
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					deliver(i, o.processDocument(runCtx, docs[i], seen))
				}
			}()
		}
	dispatch:
		for i := range docs {
			select {
			case jobs <- i:
			case <-runCtx.Done():
				break dispatch
			}
		}
		close(jobs)
		wg.Wait()
	}

	for _, r := range results {
		if r.SourceID == "" && r.Title == "" {
			continue // never dispatched, run was cancelled
		}
		stats.add(r)
	}
	stats.Finished = time.Now()

	o.recordSession(ctx, stats)
	o.logger.Info("ingestion run finished",
		"run_id", stats.RunID,
		"ingested", stats.Ingested,
		"skipped_unchanged", stats.SkippedUnchanged,
		"skipped_duplicate", stats.SkippedDuplicate,
		"skipped_empty", stats.SkippedEmpty,
		"failed", stats.Failed,
		"chunks", stats.ChunksCreated,
		"duration", stats.Duration())

	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return stats, results, cause
	}
	return stats, results, ctx.Err()
}

// processDocument runs the full pipeline for one document.
func (o *Orchestrator) processDocument(ctx context.Context, doc Document, seen *hashSet) Result {
	result := Result{SourceID: doc.ID(), Title: doc.Title}

	if len(strings.TrimSpace(doc.Content)) < o.opts.MinContentLength {
		o.logger.Debug("document rejected", "source_id", result.SourceID, "reason", ErrEmptyContent)
		result.Outcome = OutcomeSkippedEmpty
		return result
	}

	contentHash := HashContent(doc.Content)

	// Cross-document dedup within this run: two titles carrying identical
	// bytes produce one ingestion.
	if !seen.insert(contentHash) {
		o.logger.Debug("duplicate content", "source_id", result.SourceID, "hash", contentHash)
		result.Outcome = OutcomeSkippedDuplicate
		return result
	}

	if !o.opts.Force {
		unchanged, err := registry.Unchanged(ctx, o.registry, result.SourceID, contentHash)
		if err != nil {
			result.Outcome = OutcomeFailed
			result.Err = fmt.Errorf("registry lookup: %w", err)
			return result
		}
		if unchanged {
			result.Outcome = OutcomeSkippedUnchanged
			return result
		}
	}

	texts := o.splitter.Split(doc.Content)
	if len(texts) == 0 {
		result.Outcome = OutcomeFailed
		result.Err = ErrEmptyContent
		return result
	}

	chunks, dropped, err := o.embedChunks(ctx, texts)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}
	result.DroppedChunks = dropped
	if dropped > 0 {
		o.logger.Warn("chunks dropped during embedding",
			"source_id", result.SourceID, "dropped", dropped, "kept", len(chunks))
	}

	storeDoc := store.Document{
		ID:       uuid.New(),
		SourceID: result.SourceID,
		Title:    doc.Title,
		Content:  doc.Content,
		Source:   doc.Source,
		Topic:    doc.Topic,
		URL:      doc.URL,
		Metadata: map[string]string{
			"category":     doc.Category,
			"subcategory":  doc.Subcategory,
			"source_type":  doc.SourceType,
			"content_hash": contentHash,
		},
	}
	if err := o.store.ReplaceDocument(ctx, storeDoc, chunks); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("persisting document: %w", err)
		return result
	}

	entry := registry.Entry{
		SourceID:    result.SourceID,
		Title:       doc.Title,
		ContentHash: contentHash,
		ChunkCount:  len(chunks),
		Category:    doc.Category,
		Subcategory: doc.Subcategory,
		SourceType:  doc.SourceType,
		EmbeddedAt:  time.Now().UTC(),
	}
	if err := o.registry.Record(ctx, entry); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("recording registry entry: %w", err)
		return result
	}

	result.Outcome = OutcomeIngested
	result.ChunkCount = len(chunks)
	return result
}

// embedChunks embeds texts in batches. A failed batch is dropped and
// counted; the document fails only when nothing embeds. A dimension mismatch
// is never treated as transient: it propagates as a fatal error. Surviving
// chunks are renumbered so indexes stay contiguous from zero.
func (o *Orchestrator) embedChunks(ctx context.Context, texts []string) ([]store.Chunk, int, error) {
	var chunks []store.Chunk
	dropped := 0

	for start := 0; start < len(texts); start += o.opts.EmbedBatchSize {
		end := min(start+o.opts.EmbedBatchSize, len(texts))
		batch := texts[start:end]

		vectors, err := o.embedder.EmbedBatch(ctx, batch)
		if err == nil && o.opts.Dimension > 0 {
			err = model.CheckDimensions(vectors, o.opts.Dimension)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			if errors.Is(err, model.ErrDimensionMismatch) {
				return nil, 0, err
			}
			o.logger.Warn("embedding batch failed", "batch_start", start, "size", len(batch), "error", err)
			dropped += len(batch)
			continue
		}

		for i, vec := range vectors {
			chunks = append(chunks, store.Chunk{
				Index:     len(chunks),
				Text:      batch[i],
				Embedding: vec,
			})
		}
	}

	if len(chunks) == 0 {
		return nil, dropped, fmt.Errorf("%w: %d chunks dropped", ErrNoChunksEmbedded, dropped)
	}
	return chunks, dropped, nil
}

// recordSession appends the run summary when the registry keeps history.
func (o *Orchestrator) recordSession(ctx context.Context, stats Stats) {
	sink, ok := o.registry.(registry.SessionSink)
	if !ok {
		return
	}
	session := registry.Session{
		ID:               stats.RunID,
		StartedAt:        stats.Started,
		FinishedAt:       stats.Finished,
		SourcesProcessed: stats.Total,
		ChunksCreated:    stats.ChunksCreated,
		Status:           "completed",
	}
	if err := sink.RecordSession(ctx, session); err != nil {
		o.logger.Warn("recording session failed", "run_id", stats.RunID, "error", err)
	}
}

// hashSet is a concurrency-safe set of content hashes seen in one run.
type hashSet struct {
	mu sync.Mutex
	m  map[string]struct{}
}

func newHashSet() *hashSet {
	return &hashSet{m: make(map[string]struct{})}
}

// insert reports whether the hash was new.
func (h *hashSet) insert(hash string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.m[hash]; ok {
		return false
	}
	h.m[hash] = struct{}{}
	return true
}
