package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/tessera-ai/tessera/internal/security"
)

// URLExtractor fetches a web page and extracts its readable text.
// Requests go through the SSRF guard: private and link-local addresses
// are rejected at dial time and on redirects.
type URLExtractor struct {
	client *http.Client
	guard  *security.URL
}

// NewURLExtractor creates an extractor with a hardened HTTP client.
func NewURLExtractor() *URLExtractor {
	guard := security.NewURL()
	return &URLExtractor{
		client: &http.Client{
			Transport:     guard.SafeTransport(),
			CheckRedirect: guard.ValidateRedirect,
			Timeout:       URLTimeout,
		},
		guard: guard,
	}
}

// Extract fetches rawURL and returns the page's readable article text.
// Falls back to stripped page text when readability finds no article.
func (e *URLExtractor) Extract(ctx context.Context, rawURL string) (Document, error) {
	if err := e.guard.Validate(rawURL); err != nil {
		return Document{}, fmt.Errorf("validating url: %w", err)
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Document{}, fmt.Errorf("parsing url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "tessera-ingest/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxURLContentSize+1))
	if err != nil {
		return Document{}, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > MaxURLContentSize {
		return Document{}, fmt.Errorf("content of %s exceeds %d bytes", rawURL, int64(MaxURLContentSize))
	}

	title, content := extractArticle(body, pageURL)
	if content == "" {
		return Document{}, fmt.Errorf("no readable text at %s", rawURL)
	}
	if title == "" {
		title = pageURL.Host
	}

	return Document{
		Title:     title,
		SourceRef: rawURL,
		Content:   content,
	}, nil
}

// extractArticle runs readability first and falls back to goquery text
// extraction for pages readability cannot parse as an article.
func extractArticle(body []byte, pageURL *url.URL) (title, content string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		title = strings.TrimSpace(article.Title)
		content = strings.TrimSpace(article.TextContent)
		if content != "" {
			return title, collapseWhitespace(content)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	doc.Find("script, style, noscript, nav, footer, header").Remove()
	content = strings.TrimSpace(doc.Find("body").Text())
	return title, collapseWhitespace(content)
}

// collapseWhitespace normalizes runs of whitespace to single spaces,
// keeping paragraph breaks as newlines.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	lastNewline := false
	for _, r := range s {
		switch {
		case r == '\n':
			if !lastNewline {
				b.WriteRune('\n')
			}
			lastNewline = true
			lastSpace = true
		case r == ' ' || r == '\t' || r == '\r':
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
		default:
			b.WriteRune(r)
			lastSpace = false
			lastNewline = false
		}
	}
	return strings.TrimSpace(b.String())
}
