// Package scrape collects medical documents from configured web endpoints and
// RSS/Atom feeds.
//
// Each endpoint names a site plus the paths and feeds to pull from it. Pages
// are fetched politely (shared per-request delay), reduced to their main text
// content, and filtered through a keyword validator before they become
// documents. The scraper never fails a whole run on one bad page; per-URL
// failures are logged and counted.
package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/wellnessgrid/medrag/internal/config"
	"github.com/wellnessgrid/medrag/internal/log"
)

// Endpoint is one site to scrape: a base URL with page paths and feed URLs.
type Endpoint struct {
	Name        string   `json:"name"`
	BaseURL     string   `json:"base_url"`
	Paths       []string `json:"paths"`
	Feeds       []string `json:"feeds"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
}

// Document is one scraped page that passed content validation.
type Document struct {
	Title       string
	URL         string
	Category    string
	Subcategory string
	Topic       string
	Content     string
}

// Scraper crawls endpoints and feeds into validated documents.
type Scraper struct {
	cfg        config.ScraperConfig
	validator  *Validator
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Scraper. The politeness delay from the configuration is
// shared across page and feed fetches.
func New(cfg config.ScraperConfig, logger log.Logger) *Scraper {
	if logger == nil {
		logger = log.NewNop()
	}
	delay := time.Duration(cfg.RequestDelayMS) * time.Millisecond
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Scraper{
		cfg:        cfg,
		validator:  NewValidator(cfg),
		limiter:    rate.NewLimiter(limit, 1),
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		logger:     logger,
	}
}

// Scrape collects documents from one endpoint: feeds first, then page paths,
// capped at the configured per-source maximum. Individual page failures do
// not abort the endpoint.
func (s *Scraper) Scrape(ctx context.Context, ep Endpoint) ([]Document, error) {
	if ep.BaseURL == "" {
		return nil, fmt.Errorf("endpoint %q: missing base_url", ep.Name)
	}

	var docs []Document
	seen := make(map[string]bool)

	for _, feedURL := range ep.Feeds {
		if len(docs) >= s.cfg.MaxDocumentsPerSource {
			break
		}
		feedDocs, err := s.scrapeFeed(ctx, feedURL, ep)
		if err != nil {
			if ctx.Err() != nil {
				return docs, ctx.Err()
			}
			s.logger.Warn("feed scrape failed", "endpoint", ep.Name, "feed", feedURL, "error", err)
			continue
		}
		for _, d := range feedDocs {
			if len(docs) >= s.cfg.MaxDocumentsPerSource || seen[d.URL] {
				continue
			}
			seen[d.URL] = true
			docs = append(docs, d)
		}
	}

	if len(docs) < s.cfg.MaxDocumentsPerSource && len(ep.Paths) > 0 {
		pageDocs, err := s.crawlPages(ctx, ep)
		if err != nil {
			return docs, err
		}
		for _, d := range pageDocs {
			if len(docs) >= s.cfg.MaxDocumentsPerSource || seen[d.URL] {
				continue
			}
			seen[d.URL] = true
			docs = append(docs, d)
		}
	}

	s.logger.Info("endpoint scraped", "endpoint", ep.Name, "documents", len(docs))
	return docs, ctx.Err()
}

// crawlPages visits the endpoint's configured paths with a shared collector
// and converts each page that validates into a Document.
func (s *Scraper) crawlPages(ctx context.Context, ep Endpoint) ([]Document, error) {
	base, err := url.Parse(ep.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: parsing base_url: %w", ep.Name, err)
	}

	c := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
		colly.AllowedDomains(base.Hostname()),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(time.Duration(s.cfg.TimeoutMS) * time.Millisecond)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      time.Duration(s.cfg.RequestDelayMS) * time.Millisecond,
	}); err != nil {
		return nil, fmt.Errorf("configuring crawl limits: %w", err)
	}

	var docs []Document

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		pageURL := e.Request.URL.String()
		content := extractText(e.DOM)
		if err := s.validator.Validate(content); err != nil {
			s.logger.Debug("page rejected", "url", pageURL, "reason", err)
			return
		}

		title := strings.TrimSpace(e.DOM.Find("title").First().Text())
		if title == "" {
			title = strings.TrimSpace(e.DOM.Find("h1").First().Text())
		}
		if title == "" {
			title = TitleFromURL(pageURL)
		}

		docs = append(docs, Document{
			Title:       title,
			URL:         pageURL,
			Category:    ep.Category,
			Subcategory: ep.Subcategory,
			Topic:       TopicFromURL(pageURL),
			Content:     content,
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		s.logger.Warn("page fetch failed", "url", r.Request.URL.String(), "error", err)
	})

	for _, path := range ep.Paths {
		if ctx.Err() != nil {
			break
		}
		if len(docs) >= s.cfg.MaxDocumentsPerSource {
			break
		}
		target, err := base.Parse(path)
		if err != nil {
			s.logger.Warn("skipping invalid path", "endpoint", ep.Name, "path", path, "error", err)
			continue
		}
		if err := c.Visit(target.String()); err != nil {
			s.logger.Warn("visit failed", "url", target.String(), "error", err)
		}
	}

	return docs, ctx.Err()
}

// extractText reduces a parsed page to readable body text. Chrome elements
// are dropped, then the first matching content region wins, falling back to
// the whole body.
func extractText(doc *goquery.Selection) string {
	doc.Find("script, style, nav, header, footer, aside, form, noscript").Remove()

	var region *goquery.Selection
	for _, selector := range []string{"article", "main", "[role=main]", "#content", ".content"} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			region = sel
			break
		}
	}
	if region == nil {
		region = doc.Find("body").First()
	}
	if region.Length() == 0 {
		region = doc
	}

	return collapseWhitespace(region.Text())
}

// collapseWhitespace joins the text into single-spaced prose.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TitleFromURL derives a human-readable title from the last meaningful URL
// path segment.
func TitleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "Medical Document"
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		seg = strings.TrimSuffix(seg, ".html")
		seg = strings.TrimSuffix(seg, ".htm")
		if seg == "" {
			continue
		}
		seg = strings.ReplaceAll(seg, "-", " ")
		seg = strings.ReplaceAll(seg, "_", " ")
		return titleCase(seg)
	}

	if u.Host != "" {
		return "Medical Document from " + u.Host
	}
	return "Medical Document"
}

// TopicFromURL takes the second path segment as the page's topic, matching
// the /section/topic/page layout most health sites use.
func TopicFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "general"
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 1 && segments[1] != "" {
		return segments[1]
	}
	return "general"
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
		}
	}
	return strings.Join(words, " ")
}
