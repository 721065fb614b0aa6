package api

import (
	"net/http"

	"github.com/wellnessgrid/medrag/internal/log"
	"github.com/wellnessgrid/medrag/internal/model"
)

// EmbedHandler exposes the embedding model over HTTP.
type EmbedHandler struct {
	embedder  model.Embedder
	modelName string
	dimension int
	logger    log.Logger
}

// NewEmbedHandler creates an embed handler.
func NewEmbedHandler(embedder model.Embedder, modelName string, dimension int, logger log.Logger) *EmbedHandler {
	return &EmbedHandler{embedder: embedder, modelName: modelName, dimension: dimension, logger: logger}
}

// RegisterRoutes registers embed routes on the given mux.
func (h *EmbedHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/embed", h.embed)
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
	Model      string    `json:"model"`
}

func (h *EmbedHandler) embed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	vectors, err := h.embedder.EmbedBatch(r.Context(), []string{req.Text})
	if err != nil {
		h.logger.Error("embedding failed", "error", err)
		writeError(w, http.StatusBadGateway, "embedding_failed", "model server error")
		return
	}
	if len(vectors) != 1 {
		h.logger.Error("unexpected embedding count", "count", len(vectors))
		writeError(w, http.StatusBadGateway, "embedding_failed", "model server returned unexpected result")
		return
	}
	if h.dimension > 0 {
		if err := model.CheckDimensions(vectors, h.dimension); err != nil {
			h.logger.Error("embedding dimension mismatch", "error", err)
			writeError(w, http.StatusBadGateway, "embedding_failed", "model server returned wrong dimension")
			return
		}
	}

	writeJSON(w, http.StatusOK, embedResponse{
		Embedding:  vectors[0],
		Dimensions: len(vectors[0]),
		Model:      h.modelName,
	})
}
