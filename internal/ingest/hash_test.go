package ingest

import (
	"strings"
	"testing"
)

func TestHashContent(t *testing.T) {
	h1 := HashContent("some medical content")
	h2 := HashContent("some medical content")
	h3 := HashContent("some medical content.")

	if h1 != h2 {
		t.Errorf("identical content produced different hashes: %q vs %q", h1, h2)
	}
	if h1 == h3 {
		t.Error("different content produced identical hashes")
	}
	if len(h1) != contentHashLen {
		t.Errorf("len(hash) = %d, want %d", len(h1), contentHashLen)
	}
	for _, c := range h1 {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("hash contains non-hex character %q", c)
		}
	}
}

func TestSourceID(t *testing.T) {
	id := SourceID("Chronic Conditions", "diabetes", "Type 2 Diabetes Overview")

	parts := strings.Split(id, "_")
	if len(parts) < 3 {
		t.Fatalf("SourceID() = %q, want category_subcategory_hash", id)
	}
	if !strings.HasPrefix(id, "chronic_conditions_diabetes_") {
		t.Errorf("SourceID() = %q, want lowercased underscore prefix", id)
	}
	if suffix := parts[len(parts)-1]; len(suffix) != titleHashLen {
		t.Errorf("title hash %q has length %d, want %d", suffix, len(suffix), titleHashLen)
	}

	if SourceID("a", "b", "title") != SourceID("a", "b", "title") {
		t.Error("SourceID is not deterministic")
	}
	if SourceID("a", "b", "title one") == SourceID("a", "b", "title two") {
		t.Error("different titles produced the same SourceID")
	}
}

func TestSourceID_EmptyParts(t *testing.T) {
	id := SourceID("", "", "title")
	if !strings.HasPrefix(id, "general_general_") {
		t.Errorf("SourceID with empty parts = %q, want general fallbacks", id)
	}
}

func TestDocumentID_Override(t *testing.T) {
	d := Document{SourceID: "explicit_id", Category: "c", Subcategory: "s", Title: "t"}
	if d.ID() != "explicit_id" {
		t.Errorf("ID() = %q, want explicit override", d.ID())
	}

	d.SourceID = ""
	if d.ID() != SourceID("c", "s", "t") {
		t.Errorf("ID() = %q, want derived id", d.ID())
	}
}
