package testutil

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ModelServer is a deterministic stand-in for the embedding/generation model
// server. It speaks the same HTTP protocol as the real one (POST /embed with
// a texts batch, POST /generate) so tests can exercise a real model.Client
// end to end.
//
// Embeddings are derived from a hash of the input text: the same text always
// embeds to the same vector, and different texts to different vectors.
// Thread-safe for concurrent use.
type ModelServer struct {
	Dimension int

	mu       sync.Mutex
	rules    []generateRule
	fallback string
	calls    int
}

type generateRule struct {
	pattern  string
	response string
}

// NewModelServer starts a mock model server and registers cleanup with t.
// Returned URL is ready to pass to model.NewClient.
func NewModelServer(t *testing.T, dimension int) (*ModelServer, string) {
	t.Helper()

	ms := &ModelServer{
		Dimension: dimension,
		fallback:  "I don't have enough information to answer that.",
	}
	srv := httptest.NewServer(ms.handler())
	t.Cleanup(srv.Close)
	return ms, srv.URL
}

// OnGenerate registers a canned response for queries containing pattern.
// Rules are matched in registration order; SetFallback covers the rest.
func (ms *ModelServer) OnGenerate(pattern, response string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.rules = append(ms.rules, generateRule{pattern: pattern, response: response})
}

// SetFallback replaces the response for queries no rule matches.
func (ms *ModelServer) SetFallback(response string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.fallback = response
}

// Calls reports how many requests the server has answered.
func (ms *ModelServer) Calls() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.calls
}

func (ms *ModelServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /embed", ms.embed)
	mux.HandleFunc("POST /generate", ms.generate)
	return mux
}

func (ms *ModelServer) embed(w http.ResponseWriter, r *http.Request) {
	ms.count()

	var req struct {
		Texts []string `json:"texts"`
		Text  string   `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	texts := req.Texts
	if len(texts) == 0 && req.Text != "" {
		texts = []string{req.Text}
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = DeterministicEmbedding(text, ms.Dimension)
	}

	writeResponse(w, map[string]any{
		"embeddings": embeddings,
		"dimensions": ms.Dimension,
	})
}

func (ms *ModelServer) generate(w http.ResponseWriter, r *http.Request) {
	ms.count()

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ms.mu.Lock()
	response := ms.fallback
	for _, rule := range ms.rules {
		if strings.Contains(strings.ToLower(req.Prompt), strings.ToLower(rule.pattern)) {
			response = rule.response
			break
		}
	}
	ms.mu.Unlock()

	writeResponse(w, map[string]any{"response": response})
}

func (ms *ModelServer) count() {
	ms.mu.Lock()
	ms.calls++
	ms.mu.Unlock()
}

func writeResponse(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// DeterministicEmbedding maps text to a stable unit-norm vector. Equal texts
// get equal vectors; similarity between unrelated texts is effectively random.
func DeterministicEmbedding(text string, dimension int) []float32 {
	sum := sha256.Sum256([]byte(text))

	vec := make([]float32, dimension)
	var norm float64
	for i := range vec {
		// Stretch the 32 hash bytes over the full dimension.
		word := binary.BigEndian.Uint32(sum[(i*4)%28:])
		v := float64(word^mix32(i))/float64(math.MaxUint32) - 0.5
		vec[i] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// mix32 perturbs the hash per index so dimensions beyond the hash length do
// not repeat.
func mix32(i int) uint32 {
	x := uint32(i)*2654435761 + 0x9e3779b9
	x ^= x >> 16
	return x
}
