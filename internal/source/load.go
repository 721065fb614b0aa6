package source

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// sourcesFile is the on-disk shape of the sources configuration:
// category groups under "medical_sources" and "custom_documents", each with a
// priority and a list of raw sources.
type sourcesFile struct {
	MedicalSources  map[string]categoryGroup `json:"medical_sources"`
	CustomDocuments map[string]categoryGroup `json:"custom_documents"`
}

type categoryGroup struct {
	Priority string      `json:"priority"`
	Sources  []rawSource `json:"sources"`
}

type rawSource struct {
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Category    string            `json:"category"`
	Subcategory string            `json:"subcategory"`
	URL         string            `json:"url"`
	Content     string            `json:"content"`
	FilePath    string            `json:"file_path"`
	Description string            `json:"description"`
	Priority    string            `json:"priority"`
	APIParams   map[string]string `json:"api_params"`
}

// Load reads and validates a sources configuration file.
// Every source must pass Validate; one malformed entry fails the whole load,
// identifying the entry, so configuration problems surface before ingestion.
func Load(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sources file: %w", err)
	}

	var file sourcesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing sources file %s: %w", path, err)
	}

	// Category keys iterate in sorted order so load order is stable across
	// runs; duplicate-content skips then always pick the same winner.
	var sources []Source
	for _, group := range []map[string]categoryGroup{file.MedicalSources, file.CustomDocuments} {
		keys := make([]string, 0, len(group))
		for key := range group {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, categoryKey := range keys {
			cat := group[categoryKey]
			for _, raw := range cat.Sources {
				s := fromRaw(raw, categoryKey, cat.Priority)
				if err := s.Validate(); err != nil {
					return nil, fmt.Errorf("invalid source in %s: %w", path, err)
				}
				sources = append(sources, s)
			}
		}
	}

	return sources, nil
}

// fromRaw converts a raw JSON entry to a Source, filling category and
// priority from the enclosing group when the entry omits them.
func fromRaw(raw rawSource, categoryKey, groupPriority string) Source {
	s := Source{
		Kind:        Kind(raw.Type),
		Title:       raw.Title,
		Category:    raw.Category,
		Subcategory: raw.Subcategory,
		Description: raw.Description,
		Priority:    raw.Priority,
		URL:         raw.URL,
		Content:     raw.Content,
		Path:        raw.FilePath,
		APIParams:   raw.APIParams,
	}
	if s.Category == "" {
		s.Category = categoryKey
	}
	if s.Subcategory == "" {
		s.Subcategory = "general"
	}
	if s.Priority == "" {
		s.Priority = groupPriority
	}
	if s.Priority == "" {
		s.Priority = "medium"
	}
	return s
}
