// Package chunk splits document text into overlapping windows for embedding.
//
// Chunks are cut at sentence boundaries where possible so that embeddings
// capture complete thoughts. Consecutive chunks overlap by a configurable
// number of characters so context spanning a cut is not lost.
package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig indicates chunk size/overlap parameters that cannot
// produce a terminating split. Fatal: callers must abort the run.
var ErrInvalidConfig = errors.New("invalid chunk configuration")

// boundaryWindow is how far back from the ideal cut point we search for a
// sentence-terminating character.
const boundaryWindow = 200

// sentenceTerminators end a sentence for cut-point purposes.
const sentenceTerminators = ".!?"

// Splitter splits text into overlapping chunks of bounded size.
// The zero value is not usable; construct with NewSplitter.
type Splitter struct {
	maxSize int
	overlap int
}

// NewSplitter validates the chunking parameters and returns a Splitter.
// overlap must be strictly smaller than maxSize: an overlap >= maxSize would
// move the window start backwards and never terminate.
func NewSplitter(maxSize, overlap int) (*Splitter, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, maxSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap (%d) must be smaller than max size (%d)",
			ErrInvalidConfig, overlap, maxSize)
	}
	return &Splitter{maxSize: maxSize, overlap: overlap}, nil
}

// Split produces the ordered chunk sequence for content.
//
// Content at most maxSize long yields exactly one chunk equal to the input.
// Longer content is cut into windows of at most maxSize characters; each cut
// prefers the last sentence terminator within boundaryWindow characters of
// the window end, but only if that lands past the window midpoint — otherwise
// the window is cut hard at maxSize. The next window starts overlap
// characters before the previous cut, so no character range is ever skipped.
// Whitespace-only fragments are dropped.
func (s *Splitter) Split(content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if len(content) <= s.maxSize {
		return []string{content}
	}

	var chunks []string
	start := 0
	for start < len(content) {
		end := start + s.maxSize
		if end >= len(content) {
			end = len(content)
		} else {
			end = s.cutPoint(content, start, end)
		}

		if c := strings.TrimSpace(content[start:end]); c != "" {
			chunks = append(chunks, c)
		}

		if end >= len(content) {
			break
		}

		next := end - s.overlap
		if next <= start {
			// A sentence cut near the midpoint can land inside the overlap
			// region; forcing the window forward keeps termination guaranteed.
			next = end
		}
		start = next
	}
	return chunks
}

// cutPoint returns the index to cut a window [start, end) at, preferring a
// sentence boundary in the trailing boundaryWindow characters when one lies
// past the window midpoint.
func (s *Splitter) cutPoint(content string, start, end int) int {
	searchFrom := end - boundaryWindow
	if mid := start + s.maxSize/2; searchFrom < mid {
		searchFrom = mid
	}
	if i := strings.LastIndexAny(content[searchFrom:end], sentenceTerminators); i >= 0 {
		return searchFrom + i + 1 // include the terminator
	}
	return end
}

// Split is a convenience wrapper constructing a one-shot Splitter.
func Split(content string, maxSize, overlap int) ([]string, error) {
	s, err := NewSplitter(maxSize, overlap)
	if err != nil {
		return nil, err
	}
	return s.Split(content), nil
}
