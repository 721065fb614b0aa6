package scrape

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxFeedSize caps a fetched feed document.
const maxFeedSize = 5 * 1024 * 1024

// ErrUnknownFeedFormat indicates a document that is neither RSS nor Atom.
var ErrUnknownFeedFormat = errors.New("unknown feed format")

// feedItem is one entry normalized across RSS and Atom.
type feedItem struct {
	Title   string
	Link    string
	Content string
}

type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			Encoded     string `xml:"encoded"`
		} `xml:"item"`
	} `xml:"channel"`
}

type atomFeed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Rel  string `xml:"rel,attr"`
			Href string `xml:"href,attr"`
		} `xml:"link"`
		Summary string `xml:"summary"`
		Content string `xml:"content"`
	} `xml:"entry"`
}

// scrapeFeed pulls a feed and turns its entries into documents. Entry bodies
// that fail validation fall back to fetching the linked article.
func (s *Scraper) scrapeFeed(ctx context.Context, feedURL string, ep Endpoint) ([]Document, error) {
	items, err := s.fetchFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	var docs []Document
	for _, item := range items {
		if len(docs) >= s.cfg.MaxDocumentsPerSource {
			break
		}
		if item.Link == "" {
			continue
		}

		content := stripHTML(item.Content)
		if s.validator.Validate(content) != nil {
			page, err := s.fetchPage(ctx, item.Link)
			if err != nil {
				if ctx.Err() != nil {
					return docs, ctx.Err()
				}
				s.logger.Debug("feed article fetch failed", "url", item.Link, "error", err)
				continue
			}
			content = page
		}
		if err := s.validator.Validate(content); err != nil {
			s.logger.Debug("feed article rejected", "url", item.Link, "reason", err)
			continue
		}

		title := item.Title
		if title == "" {
			title = TitleFromURL(item.Link)
		}
		docs = append(docs, Document{
			Title:       title,
			URL:         item.Link,
			Category:    ep.Category,
			Subcategory: ep.Subcategory,
			Topic:       "news_updates",
			Content:     content,
		})
	}
	return docs, nil
}

// fetchFeed downloads and parses one RSS or Atom feed.
func (s *Scraper) fetchFeed(ctx context.Context, feedURL string) ([]feedItem, error) {
	body, err := s.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return parseFeed(body)
}

// parseFeed decodes RSS 2.0 or Atom by the document's root element.
func parseFeed(data []byte) ([]feedItem, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	switch root {
	case "rss":
		var feed rssFeed
		if err := xml.Unmarshal(data, &feed); err != nil {
			return nil, fmt.Errorf("parsing rss feed: %w", err)
		}
		items := make([]feedItem, 0, len(feed.Channel.Items))
		for _, it := range feed.Channel.Items {
			content := it.Encoded
			if content == "" {
				content = it.Description
			}
			items = append(items, feedItem{Title: it.Title, Link: it.Link, Content: content})
		}
		return items, nil

	case "feed":
		var feed atomFeed
		if err := xml.Unmarshal(data, &feed); err != nil {
			return nil, fmt.Errorf("parsing atom feed: %w", err)
		}
		items := make([]feedItem, 0, len(feed.Entries))
		for _, entry := range feed.Entries {
			link := ""
			for _, l := range entry.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			content := entry.Content
			if content == "" {
				content = entry.Summary
			}
			items = append(items, feedItem{Title: entry.Title, Link: link, Content: content})
		}
		return items, nil

	default:
		return nil, fmt.Errorf("%w: root element %q", ErrUnknownFeedFormat, root)
	}
}

// rootElement returns the local name of the document's first element.
func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

// fetchPage downloads one article page and extracts its main text.
func (s *Scraper) fetchPage(ctx context.Context, pageURL string) (string, error) {
	body, err := s.fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	return extractText(doc.Selection), nil
}

// fetch performs one rate-limited GET with the configured user agent.
func (s *Scraper) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return body, nil
}

// stripHTML flattens feed entry markup to plain text.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return collapseWhitespace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseWhitespace(s)
	}
	return collapseWhitespace(doc.Text())
}
