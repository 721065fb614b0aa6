package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/wellnessgrid/medrag/internal/model"
	"github.com/wellnessgrid/medrag/internal/store"
)

const testDimension = 4

type mockEmbedder struct {
	dim  int
	err  error
	last []string
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.last = texts
	if m.err != nil {
		return nil, m.err
	}
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = make([]float32, m.dim)
		vecs[i][0] = 1
	}
	return vecs, nil
}

type mockSearcher struct {
	results  []store.SearchResult
	err      error
	lastTopK int
}

func (m *mockSearcher) SearchChunks(_ context.Context, _ []float32, topK int) ([]store.SearchResult, error) {
	m.lastTopK = topK
	return m.results, m.err
}

type mockGenerator struct {
	response string
	err      error
	lastReq  model.GenerateRequest
}

func (m *mockGenerator) Generate(_ context.Context, req model.GenerateRequest) (string, error) {
	m.lastReq = req
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func testResults() []store.SearchResult {
	return []store.SearchResult{
		{
			SourceID:   "chronic_conditions_general_ab12cd34",
			Title:      "Diabetes Overview",
			URL:        "https://medline.example/diabetes",
			ChunkIndex: 0,
			Text:       "Type 2 diabetes management combines diet and medication.",
			Similarity: 0.92,
			Metadata:   map[string]string{"category": "chronic_conditions"},
		},
		{
			SourceID:   "chronic_conditions_general_ab12cd34",
			Title:      "Diabetes Overview",
			ChunkIndex: 3,
			Text:       "Regular checkups catch complications early.",
			Similarity: 0.85,
		},
	}
}

func newTestServer(searcher *mockSearcher, embedder *mockEmbedder, generator *mockGenerator) *Server {
	return NewServer(Config{
		Store:         searcher,
		Embedder:      embedder,
		Generator:     generator,
		EmbedderModel: "pubmedbert-base-embeddings",
		Dimension:     testDimension,
		DefaultTopK:   5,
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestEmbedEndpoint(t *testing.T) {
	emb := &mockEmbedder{dim: testDimension}
	s := newTestServer(&mockSearcher{}, emb, &mockGenerator{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/embed", map[string]string{"text": "chest pain"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Embedding  []float32 `json:"embedding"`
		Dimensions int       `json:"dimensions"`
		Model      string    `json:"model"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Dimensions != testDimension || len(resp.Embedding) != testDimension {
		t.Errorf("dimensions = %d, len = %d", resp.Dimensions, len(resp.Embedding))
	}
	if resp.Model != "pubmedbert-base-embeddings" {
		t.Errorf("model = %q", resp.Model)
	}
}

func TestEmbedEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name       string
		embedder   *mockEmbedder
		body       any
		wantStatus int
	}{
		{
			name:       "missing text",
			embedder:   &mockEmbedder{dim: testDimension},
			body:       map[string]string{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty body",
			embedder:   &mockEmbedder{dim: testDimension},
			body:       nil,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "model server down",
			embedder:   &mockEmbedder{dim: testDimension, err: fmt.Errorf("connection refused")},
			body:       map[string]string{"text": "x"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "wrong dimension",
			embedder:   &mockEmbedder{dim: testDimension + 1},
			body:       map[string]string{"text": "x"},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&mockSearcher{}, tt.embedder, &mockGenerator{})
			rec := doJSON(t, s.Handler(), http.MethodPost, "/api/embed", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &mockSearcher{results: testResults()}
	s := newTestServer(searcher, &mockEmbedder{dim: testDimension}, &mockGenerator{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/search", map[string]any{"query": "diabetes care"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || len(resp.Results) != 2 {
		t.Fatalf("count = %d, results = %d", resp.Count, len(resp.Results))
	}
	if resp.Results[0].Title != "Diabetes Overview" {
		t.Errorf("title = %q", resp.Results[0].Title)
	}
	if searcher.lastTopK != 5 {
		t.Errorf("topK = %d, want default 5", searcher.lastTopK)
	}
}

func TestSearchEndpoint_TopKClamped(t *testing.T) {
	searcher := &mockSearcher{}
	s := newTestServer(searcher, &mockEmbedder{dim: testDimension}, &mockGenerator{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/search", map[string]any{"query": "q", "top_k": 500})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if searcher.lastTopK != maxTopK {
		t.Errorf("topK = %d, want clamp to %d", searcher.lastTopK, maxTopK)
	}
}

func TestSearchEndpoint_Errors(t *testing.T) {
	t.Run("missing query", func(t *testing.T) {
		s := newTestServer(&mockSearcher{}, &mockEmbedder{dim: testDimension}, &mockGenerator{})
		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/search", map[string]string{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		s := newTestServer(&mockSearcher{err: fmt.Errorf("db down")}, &mockEmbedder{dim: testDimension}, &mockGenerator{})
		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/search", map[string]string{"query": "q"})
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		s := newTestServer(&mockSearcher{}, &mockEmbedder{dim: testDimension}, &mockGenerator{})
		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/search", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}

func TestGenerateEndpoint(t *testing.T) {
	gen := &mockGenerator{response: "Stay hydrated and rest."}
	s := newTestServer(&mockSearcher{results: testResults()}, &mockEmbedder{dim: testDimension}, gen)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/generate", map[string]any{
		"query":   "How do I manage diabetes?",
		"history": []map[string]string{{"role": "user", "content": "Hi"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Response != "Stay hydrated and rest." {
		t.Errorf("response = %q", resp.Response)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(resp.Sources))
	}
	if resp.Sources[0].Title != "Diabetes Overview" {
		t.Errorf("source title = %q", resp.Sources[0].Title)
	}

	if len(gen.lastReq.Context) != 2 {
		t.Errorf("generator received %d context chunks, want 2", len(gen.lastReq.Context))
	}
	if len(gen.lastReq.History) != 1 {
		t.Errorf("generator received %d history messages, want 1", len(gen.lastReq.History))
	}
}

func TestGenerateEndpoint_GeneratorFailure(t *testing.T) {
	gen := &mockGenerator{err: fmt.Errorf("model overloaded")}
	s := newTestServer(&mockSearcher{results: testResults()}, &mockEmbedder{dim: testDimension}, gen)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/generate", map[string]string{"query": "q"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(&mockSearcher{}, &mockEmbedder{dim: testDimension}, &mockGenerator{})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d", rec.Code)
	}

	// No pool configured: not ready.
	rec = doJSON(t, s.Handler(), http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready status = %d, want 503 without a pool", rec.Code)
	}
}

func TestServerRun_GracefulShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestServer(&mockSearcher{}, &mockEmbedder{dim: testDimension}, &mockGenerator{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := chain(panicking, recoveryMiddleware, loggingMiddleware)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 after panic", rec.Code)
	}
}
