package chunk

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewSplitter_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int
		overlap int
	}{
		{"zero max size", 0, 0},
		{"negative max size", -1, 0},
		{"negative overlap", 100, -1},
		{"overlap equals max size", 100, 100},
		{"overlap exceeds max size", 100, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.maxSize, tt.overlap)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewSplitter(%d, %d) = %v, want ErrInvalidConfig",
					tt.maxSize, tt.overlap, err)
			}
		})
	}
}

func TestSplit_ShortContentSingleChunk(t *testing.T) {
	content := "Aspirin reduces fever and relieves mild pain."
	chunks, err := Split(content, 1000, 200)
	if err != nil {
		t.Fatalf("Split() = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0] != content {
		t.Errorf("chunks[0] = %q, want input unchanged", chunks[0])
	}
}

func TestSplit_ExactBoundaryIsSingleChunk(t *testing.T) {
	content := strings.Repeat("a", 1000)
	chunks, err := Split(content, 1000, 200)
	if err != nil {
		t.Fatalf("Split() = %v", err)
	}
	if len(chunks) != 1 || chunks[0] != content {
		t.Errorf("content of exactly max size must yield one chunk, got %d", len(chunks))
	}
}

func TestSplit_EmptyAndWhitespace(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t \n"} {
		chunks, err := Split(content, 100, 10)
		if err != nil {
			t.Fatalf("Split(%q) = %v", content, err)
		}
		if len(chunks) != 0 {
			t.Errorf("Split(%q) produced %d chunks, want 0", content, len(chunks))
		}
	}
}

// TestSplit_MedicalScenario covers the reference scenario: 2500 characters,
// window 1000, overlap 200 should give 3-4 chunks, each non-empty, each at
// most 1000 characters.
func TestSplit_MedicalScenario(t *testing.T) {
	sentence := "Patients with hypertension should monitor blood pressure daily. "
	var b strings.Builder
	for b.Len() < 2500 {
		b.WriteString(sentence)
	}
	content := b.String()[:2500]

	chunks, err := Split(content, 1000, 200)
	if err != nil {
		t.Fatalf("Split() = %v", err)
	}
	if len(chunks) < 3 || len(chunks) > 4 {
		t.Errorf("len(chunks) = %d, want 3-4", len(chunks))
	}
	for i, c := range chunks {
		if len(c) == 0 {
			t.Errorf("chunk %d is empty", i)
		}
		if len(c) > 1000 {
			t.Errorf("chunk %d has length %d, exceeds max 1000", i, len(c))
		}
	}
}

// TestSplit_Coverage verifies that no character range is skipped between
// consecutive chunks. The content is whitespace-free (so TrimSpace cannot
// shift boundaries) and non-repeating (so each chunk occurs exactly once).
func TestSplit_Coverage(t *testing.T) {
	var b strings.Builder
	for i := 0; b.Len() < 4400; i++ {
		fmt.Fprintf(&b, "segment%04dends.", i)
	}
	content := b.String()

	chunks, err := Split(content, 1000, 200)
	if err != nil {
		t.Fatalf("Split() = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	prevEnd := 0
	searchFrom := 0
	for i, c := range chunks {
		idx := strings.Index(content[searchFrom:], c)
		if idx < 0 {
			t.Fatalf("chunk %d is not a substring of the input", i)
		}
		start := searchFrom + idx
		if i > 0 && start > prevEnd {
			t.Errorf("gap between chunk %d and %d: [%d, %d)", i-1, i, prevEnd, start)
		}
		prevEnd = start + len(c)
		searchFrom = start + 1
	}
	if prevEnd != len(content) {
		t.Errorf("last chunk ends at %d, want %d", prevEnd, len(content))
	}
}

// TestSplit_SentenceBoundaryCut checks that cuts land just after sentence
// terminators when one is available in the trailing search window.
func TestSplit_SentenceBoundaryCut(t *testing.T) {
	sentence := "The immune system defends the body against infection! "
	var b strings.Builder
	for b.Len() < 3000 {
		b.WriteString(sentence)
	}
	content := b.String()

	chunks, err := Split(content, 1000, 200)
	if err != nil {
		t.Fatalf("Split() = %v", err)
	}
	// All chunks except possibly the last should end on a terminator.
	for i, c := range chunks[:len(chunks)-1] {
		last := c[len(c)-1]
		if !strings.ContainsRune(sentenceTerminators, rune(last)) {
			t.Errorf("chunk %d ends with %q, want a sentence terminator", i, last)
		}
	}
}

// TestSplit_NoPunctuationHardCut: without terminators near the cut, the
// window is cut hard at max size.
func TestSplit_NoPunctuationHardCut(t *testing.T) {
	content := strings.Repeat("x", 2500)
	chunks, err := Split(content, 1000, 200)
	if err != nil {
		t.Fatalf("Split() = %v", err)
	}
	if len(chunks[0]) != 1000 {
		t.Errorf("first chunk length = %d, want hard cut at 1000", len(chunks[0]))
	}
}

// TestSplit_LargeOverlapTerminates guards against regression of the
// forced-progress rule when a midpoint sentence cut lands inside the
// overlap region.
func TestSplit_LargeOverlapTerminates(t *testing.T) {
	// Terminator just past the midpoint, overlap larger than the tail.
	content := strings.Repeat("a", 150) + "." + strings.Repeat("b", 2000)

	done := make(chan []string, 1)
	go func() {
		chunks, err := Split(content, 300, 250)
		if err != nil {
			t.Errorf("Split() = %v", err)
		}
		done <- chunks
	}()

	chunks := <-done
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}
	for i, c := range chunks {
		if len(c) > 300 {
			t.Errorf("chunk %d exceeds max size: %d", i, len(c))
		}
	}
}
