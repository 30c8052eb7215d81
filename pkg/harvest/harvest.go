// Package harvest fetches a web article and splits its readable text into
// sentences ready for submission.
package harvest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/japaniel/sentencebase/pkg/tokenize"
)

// DefaultMaxBodySize bounds the HTML read from untrusted URLs.
const DefaultMaxBodySize = 10 * 1024 * 1024

// Article is the extracted text of a page.
type Article struct {
	Title     string
	Sentences []string
}

// Fetcher downloads and extracts articles.
type Fetcher struct {
	Client      *http.Client
	MaxBodySize int64
}

// NewFetcher returns a Fetcher with a 30 second timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:      &http.Client{Timeout: 30 * time.Second},
		MaxBodySize: DefaultMaxBodySize,
	}
}

// Fetch downloads rawURL, strips furigana, extracts the main text and splits
// it into sentences.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Article, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Article{}, fmt.Errorf("parse url: %w", err)
	}
	body, err := f.download(ctx, pageURL)
	if err != nil {
		return Article{}, err
	}

	// <rt> readings would otherwise be glued into the text.
	body = tokenize.SanitizeRuby(body)

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("failed to extract article: %w", err)
	}
	return Article{
		Title:     article.Title,
		Sentences: tokenize.SplitSentences(article.TextContent),
	}, nil
}

func (f *Fetcher) download(ctx context.Context, pageURL *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Some news sites block clients that do not look like a browser.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	limit := f.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("content-length %d exceeds limit of %d bytes", resp.ContentLength, limit)
	}
	// Read one byte past the limit to tell a full body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response body exceeded maximum size limit of %d bytes", limit)
	}
	return body, nil
}
