package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/wellnessgrid/medrag/internal/log"
)

const (
	// maxFetchSize caps a single fetched page or API response.
	maxFetchSize = 10 * 1024 * 1024

	// maxAPIContentLength caps the flattened text extracted from an API
	// response; API payloads are summaries, not full documents.
	maxAPIContentLength = 5000

	// maxAPIItems limits how many records of a JSON array are flattened.
	maxAPIItems = 20
)

// Fetcher resolves a Source's content. Safe for concurrent use.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	logger     log.Logger
}

// NewFetcher creates a Fetcher. A nil httpClient gets a 30-second timeout
// default; a nil logger discards output.
func NewFetcher(httpClient *http.Client, userAgent string, logger log.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Fetcher{httpClient: httpClient, userAgent: userAgent, logger: logger}
}

// Fetch returns the text content for a source, dispatching on its kind.
func (f *Fetcher) Fetch(ctx context.Context, s Source) (string, error) {
	switch s.Kind {
	case KindText:
		return s.Content, nil
	case KindFile:
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return "", fmt.Errorf("reading source file: %w", err)
		}
		return string(data), nil
	case KindURL:
		return f.fetchURL(ctx, s.URL)
	case KindAPI:
		return f.fetchAPI(ctx, s)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
}

// fetchURL downloads a page and extracts its readable main content,
// stripping navigation, scripts, and other boilerplate.
func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) (string, error) {
	body, err := f.get(ctx, rawURL, nil)
	if err != nil {
		return "", err
	}

	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err != nil {
		return "", fmt.Errorf("extracting content from %s: %w", rawURL, err)
	}

	text := normalizeWhitespace(article.TextContent)
	f.logger.Debug("fetched url", "url", rawURL, "title", article.Title, "length", len(text))
	return text, nil
}

// fetchAPI queries a JSON API and flattens the response into readable text.
func (f *Fetcher) fetchAPI(ctx context.Context, s Source) (string, error) {
	params := url.Values{}
	for k, v := range s.APIParams {
		params.Set(k, v)
	}
	// Keep unbounded endpoints from returning their whole dataset.
	if params.Get("limit") == "" && params.Get("$limit") == "" && params.Get("pageSize") == "" {
		params.Set("limit", "50")
	}

	body, err := f.get(ctx, s.URL, params)
	if err != nil {
		return "", err
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		// Not JSON: treat the raw body as text.
		return clampText(string(body), maxAPIContentLength), nil
	}

	return flattenAPIResponse(data), nil
}

// get performs a GET request with the fetcher's user agent and size cap.
func (f *Fetcher) get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	target := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		target = rawURL + sep + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return body, nil
}

// flattenAPIResponse renders a decoded JSON value as "key: value" lines,
// limited to the first maxAPIItems records and maxAPIContentLength chars.
func flattenAPIResponse(data any) string {
	switch v := data.(type) {
	case []any:
		return clampText(flattenItems(v), maxAPIContentLength)
	case map[string]any:
		// Common envelope shapes first.
		for _, key := range []string{"results", "data", "items"} {
			if inner, ok := v[key].([]any); ok {
				return clampText(flattenItems(inner), maxAPIContentLength)
			}
		}
		return clampText(flattenItem(v), maxAPIContentLength)
	default:
		return clampText(fmt.Sprintf("%v", v), maxAPIContentLength)
	}
}

func flattenItems(items []any) string {
	var parts []string
	for i, item := range items {
		if i >= maxAPIItems {
			break
		}
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if text := flattenItem(obj); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// flattenItem keeps string fields long enough to carry content; ids and
// short codes are noise for embedding purposes. Keys are emitted in sorted
// order: the content hash is computed over this text, so identical payloads
// must always flatten identically.
func flattenItem(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		s, ok := obj[key].(string)
		if !ok || len(s) <= 10 {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", key, s)
	}
	return b.String()
}

func clampText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// normalizeWhitespace collapses runs of blank lines and trims each line.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
