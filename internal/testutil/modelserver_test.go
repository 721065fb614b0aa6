package testutil

import (
	"context"
	"math"
	"testing"

	"github.com/wellnessgrid/medrag/internal/model"
)

func TestDeterministicEmbedding(t *testing.T) {
	a := DeterministicEmbedding("diabetes treatment", 768)
	b := DeterministicEmbedding("diabetes treatment", 768)
	c := DeterministicEmbedding("heart disease", 768)

	if len(a) != 768 {
		t.Fatalf("dimension = %d, want 768", len(a))
	}

	var equal = true
	for i := range a {
		if a[i] != b[i] {
			equal = false
			break
		}
	}
	if !equal {
		t.Error("same text produced different vectors")
	}

	var diff bool
	for i := range a {
		if a[i] != c[i] {
			diff = true
			break
		}
	}
	if !diff {
		t.Error("different texts produced identical vectors")
	}

	// Unit norm keeps cosine similarity well defined.
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-3 {
		t.Errorf("norm^2 = %f, want 1", norm)
	}
}

func TestModelServer_Embed(t *testing.T) {
	ms, url := NewModelServer(t, 16)
	client := model.NewClient(url, "test-embedder", "test-generator")

	vecs, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if err := model.CheckDimensions(vecs, 16); err != nil {
		t.Errorf("CheckDimensions() error = %v", err)
	}
	if ms.Calls() != 1 {
		t.Errorf("calls = %d, want 1", ms.Calls())
	}
}

func TestModelServer_Generate(t *testing.T) {
	ms, url := NewModelServer(t, 16)
	ms.OnGenerate("diabetes", "Monitor blood sugar and follow your care plan.")
	client := model.NewClient(url, "test-embedder", "test-generator")

	got, err := client.Generate(context.Background(), model.GenerateRequest{
		Query:   "How should I manage diabetes?",
		Context: []string{"Blood sugar monitoring is central to diabetes care."},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "Monitor blood sugar and follow your care plan." {
		t.Errorf("response = %q", got)
	}

	// Unmatched queries get the fallback.
	got, err = client.Generate(context.Background(), model.GenerateRequest{Query: "What is the weather?"})
	if err != nil {
		t.Fatalf("Generate() fallback error = %v", err)
	}
	if got == "" {
		t.Error("fallback response empty")
	}
}
