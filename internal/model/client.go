package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseSize caps model server responses to guard against a
// misbehaving server exhausting memory. Generous: a 768-dim float batch of
// several hundred chunks stays well under this.
const maxResponseSize = 64 * 1024 * 1024

// Client talks to the model server's REST API. It implements both Embedder
// and Generator. Safe for concurrent use.
type Client struct {
	baseURL        string
	embedderModel  string
	generatorModel string
	httpClient     *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests, custom timeouts).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a model server client.
// baseURL is the server root, e.g. http://localhost:5000.
func NewClient(baseURL, embedderModel, generatorModel string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		embedderModel:  embedderModel,
		generatorModel: generatorModel,
		httpClient:     &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EmbedBatch sends texts to POST /embed and returns one vector per text.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload := map[string]any{
		"model": c.embedderModel,
		"texts": texts,
	}

	body, err := c.post(ctx, "/embed", payload)
	if err != nil {
		return nil, fmt.Errorf("model embed: %w", err)
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("model embed decode: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("model embed: got %d embeddings for %d texts",
			len(resp.Embeddings), len(texts))
	}
	for i, v := range resp.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyEmbedding, i)
		}
	}

	return resp.Embeddings, nil
}

// Generate sends a grounded prompt to POST /generate and returns the
// completion text.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	payload := map[string]any{
		"model":   c.generatorModel,
		"prompt":  buildPrompt(req),
		"history": req.History,
	}

	body, err := c.post(ctx, "/generate", payload)
	if err != nil {
		return "", fmt.Errorf("model generate: %w", err)
	}

	var resp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("model generate decode: %w", err)
	}
	if resp.Response == "" {
		return "", fmt.Errorf("model generate: empty response")
	}

	return resp.Response, nil
}

// buildPrompt assembles the medical-assistant prompt from query, retrieved
// context, and conversation history.
func buildPrompt(req GenerateRequest) string {
	var b strings.Builder

	b.WriteString("You are a medical AI assistant providing evidence-based information. ")
	b.WriteString("Use the provided medical context to answer the user's question accurately and helpfully.\n\n")

	if len(req.History) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, m := range req.History {
			label := "User"
			if m.Role == "assistant" {
				label = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, m.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Current query: %s\n\n", req.Query)

	if len(req.Context) > 0 {
		b.WriteString("Relevant Medical Information:\n")
		for i, chunk := range req.Context {
			fmt.Fprintf(&b, "--- Context %d ---\n%s\n", i+1, chunk)
		}
		b.WriteString("\n")
	}

	b.WriteString("Instructions:\n")
	b.WriteString("- Provide accurate, evidence-based medical information\n")
	b.WriteString("- Reference the provided context when relevant\n")
	b.WriteString("- Include appropriate medical disclaimers\n\n")
	b.WriteString("Response:")

	return b.String()
}

// post sends a JSON payload and returns the response body.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
