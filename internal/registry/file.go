package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileFormatVersion is written into new registry files.
const fileFormatVersion = "1.0"

// fileState is the on-disk document: entries keyed by source id, a session
// history, and rolling statistics.
type fileState struct {
	EmbeddedDocuments map[string]Entry `json:"embedded_documents"`
	EmbeddingSessions []Session        `json:"embedding_sessions"`
	Statistics        fileStatistics   `json:"statistics"`
	Metadata          fileMetadata     `json:"metadata"`
}

type fileStatistics struct {
	TotalDocumentsEmbedded int    `json:"total_documents_embedded"`
	TotalChunksCreated     int    `json:"total_chunks_created"`
	LastEmbeddingSession   string `json:"last_embedding_session,omitempty"`
}

type fileMetadata struct {
	Version     string `json:"version"`
	CreatedDate string `json:"created_date"`
	LastUpdated string `json:"last_updated"`
}

// File is a JSON-file-backed Registry. Every mutation rewrites the file
// atomically (temp file plus rename), so a crash mid-write cannot corrupt
// previously recorded state. Safe for concurrent use within one process; not
// safe across processes.
type File struct {
	mu    sync.Mutex
	path  string
	state fileState
}

// NewFile opens or creates the registry file at path.
func NewFile(path string) (*File, error) {
	f := &File{path: path}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		f.state = fileState{
			EmbeddedDocuments: make(map[string]Entry),
			Metadata: fileMetadata{
				Version:     fileFormatVersion,
				CreatedDate: time.Now().UTC().Format(time.RFC3339),
			},
		}
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &f.state); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", path, err)
	}
	if f.state.EmbeddedDocuments == nil {
		f.state.EmbeddedDocuments = make(map[string]Entry)
	}
	return f, nil
}

func (f *File) Lookup(_ context.Context, sourceID string) (Entry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.state.EmbeddedDocuments[sourceID]
	return entry, ok, nil
}

func (f *File) Record(_ context.Context, entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.state.EmbeddedDocuments[entry.SourceID]
	f.state.EmbeddedDocuments[entry.SourceID] = entry

	f.state.Statistics.TotalChunksCreated += entry.ChunkCount
	if existed {
		f.state.Statistics.TotalChunksCreated -= prev.ChunkCount
	} else {
		f.state.Statistics.TotalDocumentsEmbedded++
	}

	return f.persist()
}

func (f *File) Delete(_ context.Context, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, existed := f.state.EmbeddedDocuments[sourceID]
	if !existed {
		return nil
	}
	delete(f.state.EmbeddedDocuments, sourceID)
	f.state.Statistics.TotalDocumentsEmbedded--
	f.state.Statistics.TotalChunksCreated -= entry.ChunkCount

	return f.persist()
}

func (f *File) RecordSession(_ context.Context, session Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state.EmbeddingSessions = append(f.state.EmbeddingSessions, session)
	f.state.Statistics.LastEmbeddingSession = session.FinishedAt.UTC().Format(time.RFC3339)

	return f.persist()
}

// persist writes the state atomically. Callers hold f.mu.
func (f *File) persist() error {
	f.state.Metadata.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(f.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".registry-*")
	if err != nil {
		return fmt.Errorf("creating registry temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing registry temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing registry file: %w", err)
	}
	return nil
}
