// Package model adapts the external embedding/generation model server.
//
// The pipeline treats models as remote collaborators behind a small HTTP API:
// the embedder turns chunk text into fixed-dimension vectors, the generator
// produces grounded answers from retrieved context. Only the dimensional
// contract of the embedder matters to the rest of the system; it is verified
// once at startup and assumed everywhere downstream.
package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch indicates the model's observed output dimension
	// differs from the configured expectation. Fatal: all storage assumes a
	// fixed dimension, so the run must abort before anything is persisted.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyEmbedding indicates the model returned no vector for an input.
	ErrEmptyEmbedding = errors.New("empty embedding returned")
)

// Embedder produces one embedding vector per input text, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a completion for a retrieval-augmented prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest carries everything needed to build a grounded answer.
type GenerateRequest struct {
	Query   string    // User question
	Context []string  // Retrieved chunk texts, most relevant first
	History []Message // Optional prior conversation turns
}

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// VerifyDimension embeds a probe string and checks the observed vector length
// against want. Called once at startup; a mismatch means the configured model
// and the pgvector schema disagree, so nothing may be persisted.
func VerifyDimension(ctx context.Context, e Embedder, want int) error {
	vecs, err := e.EmbedBatch(ctx, []string{"dimension probe"})
	if err != nil {
		return fmt.Errorf("probing embedder: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return ErrEmptyEmbedding
	}
	if got := len(vecs[0]); got != want {
		return fmt.Errorf("%w: model produces %d dimensions, expected %d", ErrDimensionMismatch, got, want)
	}
	return nil
}

// CheckDimensions validates every vector in a batch against want.
// A mismatch anywhere is a hard failure, never silently tolerated.
func CheckDimensions(vecs [][]float32, want int) error {
	for i, v := range vecs {
		if len(v) != want {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), want)
		}
	}
	return nil
}
