package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// contentHashLen is the hex length kept from the content digest. Truncation
	// is for storage compactness; this hash detects change, it is not a
	// security boundary.
	contentHashLen = 16

	// titleHashLen is the hex length of the title digest inside a source id.
	titleHashLen = 8
)

// HashContent returns the truncated SHA-256 hex digest of content. Identical
// content always yields an identical hash.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:contentHashLen]
}

// SourceID derives the stable identifier for a document from its category,
// subcategory and title. The title is hashed so ids stay filesystem- and
// SQL-friendly regardless of the title's characters.
func SourceID(category, subcategory, title string) string {
	sum := sha256.Sum256([]byte(title))
	return fmt.Sprintf("%s_%s_%s",
		sanitizeIDPart(category),
		sanitizeIDPart(subcategory),
		hex.EncodeToString(sum[:])[:titleHashLen],
	)
}

func sanitizeIDPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "general"
	}
	return s
}
