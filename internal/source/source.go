// Package source defines ingestion sources and how their content is obtained.
//
// A Source is a tagged union over four kinds: a web page URL, inline text, a
// local file, or a JSON API endpoint. Each kind has explicit required fields
// validated at load time, so a malformed sources file fails before the
// pipeline starts rather than defaulting silently mid-run.
package source

import (
	"errors"
	"fmt"
)

// Kind discriminates the source union.
type Kind string

// Supported source kinds.
const (
	KindURL  Kind = "url"
	KindText Kind = "text"
	KindFile Kind = "file"
	KindAPI  Kind = "api"
)

var (
	// ErrUnknownKind indicates a source type outside the supported union.
	ErrUnknownKind = errors.New("unknown source kind")

	// ErrMissingField indicates a source missing a field its kind requires.
	ErrMissingField = errors.New("missing required source field")
)

// Source is one unit of content to ingest.
type Source struct {
	Kind        Kind
	Title       string
	Category    string
	Subcategory string
	Description string
	Priority    string

	// Kind-specific payload. Exactly one of these is required depending on
	// Kind; Validate enforces it.
	URL       string            // KindURL, KindAPI
	Content   string            // KindText
	Path      string            // KindFile
	APIParams map[string]string // KindAPI only, optional
}

// Validate checks the per-kind required fields.
func (s Source) Validate() error {
	if s.Title == "" {
		return fmt.Errorf("%w: title", ErrMissingField)
	}
	if s.Category == "" {
		return fmt.Errorf("%w: category (source %q)", ErrMissingField, s.Title)
	}

	switch s.Kind {
	case KindURL, KindAPI:
		if s.URL == "" {
			return fmt.Errorf("%w: url (source %q, kind %q)", ErrMissingField, s.Title, s.Kind)
		}
	case KindText:
		if s.Content == "" {
			return fmt.Errorf("%w: content (source %q, kind %q)", ErrMissingField, s.Title, s.Kind)
		}
	case KindFile:
		if s.Path == "" {
			return fmt.Errorf("%w: file_path (source %q, kind %q)", ErrMissingField, s.Title, s.Kind)
		}
	default:
		return fmt.Errorf("%w: %q (source %q)", ErrUnknownKind, s.Kind, s.Title)
	}

	return nil
}
