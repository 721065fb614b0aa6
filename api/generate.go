package api

import (
	"net/http"

	"github.com/wellnessgrid/medrag/internal/log"
	"github.com/wellnessgrid/medrag/internal/model"
)

// GenerateHandler serves retrieval-augmented generation: retrieve the chunks
// closest to the query, then ask the generation model to answer from them.
type GenerateHandler struct {
	retriever   retriever
	generator   model.Generator
	defaultTopK int
	logger      log.Logger
}

// NewGenerateHandler creates a generate handler.
func NewGenerateHandler(store Searcher, embedder model.Embedder, generator model.Generator, defaultTopK int, logger log.Logger) *GenerateHandler {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &GenerateHandler{
		retriever:   retriever{store: store, embedder: embedder, logger: logger},
		generator:   generator,
		defaultTopK: defaultTopK,
		logger:      logger,
	}
}

// RegisterRoutes registers generate routes on the given mux.
func (h *GenerateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/generate", h.generate)
}

type generateRequest struct {
	Query   string          `json:"query"`
	History []model.Message `json:"history"`
	TopK    int             `json:"top_k"`
}

type generateSource struct {
	SourceID   string  `json:"source_id"`
	Title      string  `json:"title"`
	URL        string  `json:"url,omitempty"`
	Similarity float64 `json:"similarity"`
}

type generateResponse struct {
	Response string           `json:"response"`
	Sources  []generateSource `json:"sources"`
}

func (h *GenerateHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
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
		writeError(w, http.StatusBadGateway, "retrieval_failed", err.Error())
		return
	}

	contexts := make([]string, 0, len(results))
	for _, res := range results {
		contexts = append(contexts, res.Text)
	}

	answer, err := h.generator.Generate(r.Context(), model.GenerateRequest{
		Query:   req.Query,
		Context: contexts,
		History: req.History,
	})
	if err != nil {
		h.logger.Error("generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "generation_failed", "model server error")
		return
	}

	sources := make([]generateSource, 0, len(results))
	for _, res := range results {
		sources = append(sources, generateSource{
			SourceID:   res.SourceID,
			Title:      res.Title,
			URL:        res.URL,
			Similarity: res.Similarity,
		})
	}

	writeJSON(w, http.StatusOK, generateResponse{Response: answer, Sources: sources})
}
