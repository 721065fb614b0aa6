package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/wellnessgrid/medrag/internal/log"
	"github.com/wellnessgrid/medrag/internal/model"
)

// maxTopK caps the search depth a single request may ask for.
const maxTopK = 50

var (
	errQueryEmbedding = errors.New("query embedding failed")
	errSearch         = errors.New("vector search failed")
)

// retriever embeds a query and fetches its closest chunks. Shared by the
// search and generate handlers.
type retriever struct {
	store    Searcher
	embedder model.Embedder
	logger   log.Logger
}

func (rt *retriever) retrieve(ctx context.Context, query string, topK int) ([]searchResult, error) {
	vectors, err := rt.embedder.EmbedBatch(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		rt.logger.Error("query embedding failed", "error", err)
		return nil, errQueryEmbedding
	}

	rows, err := rt.store.SearchChunks(ctx, vectors[0], topK)
	if err != nil {
		rt.logger.Error("chunk search failed", "error", err)
		return nil, errSearch
	}

	results := make([]searchResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, searchResult{
			SourceID:   row.SourceID,
			Title:      row.Title,
			URL:        row.URL,
			ChunkIndex: row.ChunkIndex,
			Text:       row.Text,
			Similarity: row.Similarity,
			Metadata:   row.Metadata,
		})
	}
	return results, nil
}

// clampTopK applies the default and upper bound to a requested depth.
func clampTopK(requested, fallback int) int {
	topK := requested
	if topK <= 0 {
		topK = fallback
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	return topK
}

// SearchHandler serves similarity search over document chunks.
type SearchHandler struct {
	retriever   retriever
	defaultTopK int
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(store Searcher, embedder model.Embedder, defaultTopK int, logger log.Logger) *SearchHandler {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &SearchHandler{
		retriever:   retriever{store: store, embedder: embedder, logger: logger},
		defaultTopK: defaultTopK,
	}
}

// RegisterRoutes registers search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.search)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResult struct {
	SourceID   string            `json:"source_id"`
	Title      string            `json:"title"`
	URL        string            `json:"url,omitempty"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
	Count   int            `json:"count"`
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	results, err := h.retriever.retrieve(r.Context(), req.Query, clampTopK(req.TopK, h.defaultTopK))
	if err != nil {
		writeError(w, http.StatusBadGateway, "search_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}
