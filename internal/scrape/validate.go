package scrape

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wellnessgrid/medrag/internal/config"
)

// minKeywordHits is how many required keywords a page must contain before it
// counts as medical content.
const minKeywordHits = 2

var (
	// ErrContentTooShort indicates a page below the word-count floor.
	ErrContentTooShort = errors.New("content below minimum word count")

	// ErrContentTooLong indicates a page above the word-count ceiling.
	ErrContentTooLong = errors.New("content above maximum word count")

	// ErrExcludedContent indicates the page matched an excluded keyword,
	// typically a cookie banner or legal boilerplate page.
	ErrExcludedContent = errors.New("content matches excluded keyword")

	// ErrNotMedical indicates too few required medical keywords.
	ErrNotMedical = errors.New("content lacks medical keywords")
)

// Validator decides whether scraped text is usable medical content.
type Validator struct {
	minWords int
	maxWords int
	required []string
	excluded []string
}

// NewValidator builds a Validator from scraper configuration.
func NewValidator(cfg config.ScraperConfig) *Validator {
	return &Validator{
		minWords: cfg.MinWordCount,
		maxWords: cfg.MaxWordCount,
		required: lowerAll(cfg.RequiredKeywords),
		excluded: lowerAll(cfg.ExcludedKeywords),
	}
}

// Validate returns nil for usable content, otherwise a sentinel error
// describing the first failed check.
func (v *Validator) Validate(content string) error {
	words := len(strings.Fields(content))
	if words < v.minWords {
		return fmt.Errorf("%w: %d words, minimum %d", ErrContentTooShort, words, v.minWords)
	}
	if v.maxWords > 0 && words > v.maxWords {
		return fmt.Errorf("%w: %d words, maximum %d", ErrContentTooLong, words, v.maxWords)
	}

	lower := strings.ToLower(content)

	for _, kw := range v.excluded {
		if strings.Contains(lower, kw) {
			return fmt.Errorf("%w: %q", ErrExcludedContent, kw)
		}
	}

	hits := 0
	for _, kw := range v.required {
		if strings.Contains(lower, kw) {
			hits++
			if hits >= minKeywordHits {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %d of %d required hits", ErrNotMedical, hits, minKeywordHits)
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
