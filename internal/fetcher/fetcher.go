// Package fetcher provides a minimal concrete HTTP Fetcher for the engine's
// external collaborator interface (spec §1: "the engine does not itself own
// site fetching/rendering"). Site fetching is explicitly out of scope for
// the domain stack (see DESIGN.md); this is a small stdlib client, not a
// scraping framework, since no third-party fetching concern is in bounds
// here.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPFetcher retrieves raw HTML over plain HTTP(S) with a configurable
// User-Agent and per-request timeout, mirroring the teacher's
// http.NewRequestWithContext + explicit User-Agent header idiom
// (internal/services/crawler/image_storage.go).
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPFetcher builds an HTTPFetcher with sane defaults.
func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "lorekeeper-extractor/1.0"
	}
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
	}
}

// Fetch implements orchestrator.Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), nil
}
