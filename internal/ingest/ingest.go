// Package ingest orchestrates the document pipeline: hash, dedup, chunk,
// embed, persist, record.
//
// Each document flows through the pipeline independently and yields an
// explicit Outcome instead of an error-driven control flow: skips are
// expected results, not exceptions. A run aggregates per-document results
// into Stats.
package ingest

import (
	"errors"
	"time"
)

// Outcome classifies what the pipeline did with one document.
type Outcome int

const (
	// OutcomeIngested means chunks were embedded and persisted.
	OutcomeIngested Outcome = iota

	// OutcomeSkippedUnchanged means the registry already holds this
	// document at the same content hash.
	OutcomeSkippedUnchanged

	// OutcomeSkippedDuplicate means another document in this run had
	// byte-identical content.
	OutcomeSkippedDuplicate

	// OutcomeSkippedEmpty means the content was missing or below the
	// minimum length threshold.
	OutcomeSkippedEmpty

	// OutcomeFailed means chunking, embedding, or persistence failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIngested:
		return "ingested"
	case OutcomeSkippedUnchanged:
		return "skipped_unchanged"
	case OutcomeSkippedDuplicate:
		return "skipped_duplicate"
	case OutcomeSkippedEmpty:
		return "skipped_empty"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrEmptyContent marks documents rejected for missing or too-short content.
var ErrEmptyContent = errors.New("document content below minimum length")

// ErrNoChunksEmbedded marks documents whose every chunk failed to embed.
var ErrNoChunksEmbedded = errors.New("no chunks successfully embedded")

// Document is the pipeline's input unit, assembled from a configured source
// or a scrape.
type Document struct {
	// SourceID overrides the derived id when set. Normally left empty.
	SourceID string

	Title       string
	Content     string
	Source      string
	Topic       string
	URL         string
	Category    string
	Subcategory string
	SourceType  string
}

// ID returns the document's stable source id.
func (d Document) ID() string {
	if d.SourceID != "" {
		return d.SourceID
	}
	return SourceID(d.Category, d.Subcategory, d.Title)
}

// Result is the pipeline's verdict on one document.
type Result struct {
	SourceID   string
	Title      string
	Outcome    Outcome
	ChunkCount int

	// DroppedChunks counts chunks lost to embedding failures while the
	// document itself still succeeded.
	DroppedChunks int

	// Err carries the failure reason when Outcome is OutcomeFailed.
	Err error
}

// Stats aggregates a run.
type Stats struct {
	RunID            string
	Started          time.Time
	Finished         time.Time
	Total            int
	Ingested         int
	SkippedUnchanged int
	SkippedDuplicate int
	SkippedEmpty     int
	Failed           int
	ChunksCreated    int
	ChunksDropped    int
}

// Duration returns the wall time of the run.
func (s Stats) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

func (s *Stats) add(r Result) {
	s.Total++
	switch r.Outcome {
	case OutcomeIngested:
		s.Ingested++
		s.ChunksCreated += r.ChunkCount
		s.ChunksDropped += r.DroppedChunks
	case OutcomeSkippedUnchanged:
		s.SkippedUnchanged++
	case OutcomeSkippedDuplicate:
		s.SkippedDuplicate++
	case OutcomeSkippedEmpty:
		s.SkippedEmpty++
	case OutcomeFailed:
		s.Failed++
	}
}
