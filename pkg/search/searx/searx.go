// Package searx implements pkg/search's Searcher against a SearxNG
// instance's JSON API.
package searx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/search"
)

const (
	// DefaultLimit is the number of results returned when the caller
	// passes a non-positive limit.
	DefaultLimit = 10
)

// Searcher wraps a SearxNG instance's JSON search API.
type Searcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds configuration for the SearxNG searcher.
type Config struct {
	// URL is the SearxNG instance URL (e.g., "http://localhost:8888").
	URL string
}

// searxResponse is the JSON payload returned by /search?format=json.
type searxResponse struct {
	Results []searxResult `json:"results"`
}

type searxResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// NewSearcher creates a new SearxNG-backed searcher.
func NewSearcher(c Config, logger *zap.Logger) (*Searcher, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("searx URL is required")
	}

	return &Searcher{
		baseURL: c.URL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// Search runs one query against the instance and maps the results.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("pageno", "1")

	reqURL := s.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", search.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("searx returned status %d: %s", resp.StatusCode, string(body))
	}

	var sResp searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&sResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	results := make([]search.Result, 0, min(limit, len(sResp.Results)))
	for _, r := range sResp.Results {
		if len(results) == limit {
			break
		}
		results = append(results, search.Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
		})
	}

	s.logger.Debug("searx query complete",
		zap.String("query", query),
		zap.String("limit", strconv.Itoa(limit)),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Close releases resources held by the searcher.
func (s *Searcher) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

// Ensure Searcher implements search.Searcher
var _ search.Searcher = (*Searcher)(nil)
