package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/datasmith-ai/datasmith/internal/common"
)

const defaultSerpAPIEndpoint = "https://serpapi.com/search.json"

// SerpAPISearcher implements Searcher over the SerpAPI Google engine.
type SerpAPISearcher struct {
	key      string
	endpoint string
	client   *http.Client
}

// NewSerpAPISearcher constructs the provider. endpoint may be empty for the
// public API; timeout bounds each request.
func NewSerpAPISearcher(apiKey, endpoint string, timeout time.Duration) *SerpAPISearcher {
	if endpoint == "" {
		endpoint = defaultSerpAPIEndpoint
	}
	return &SerpAPISearcher{
		key:      apiKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type serpAPIResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic_results"`
}

func (s *SerpAPISearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	logger := common.Logger()
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(maxResults))
	params.Set("api_key", s.key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &UnavailableError{Gateway: "search", Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		logger.Warn("gateway: serpapi request failed", "query", query, "error", err)
		return nil, &UnavailableError{Gateway: "search", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("serpapi returned status %d", resp.StatusCode)
		logger.Warn("gateway: serpapi request rejected", "query", query, "status", resp.StatusCode)
		return nil, &UnavailableError{Gateway: "search", Err: err}
	}
	var payload serpAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &UnavailableError{Gateway: "search", Err: fmt.Errorf("decode serpapi response: %w", err)}
	}
	now := time.Now().UTC()
	results := make([]SearchResult, 0, len(payload.OrganicResults))
	for _, r := range payload.OrganicResults {
		if len(results) >= maxResults {
			break
		}
		results = append(results, SearchResult{
			Title:       r.Title,
			Snippet:     r.Snippet,
			URL:         r.Link,
			RetrievedAt: now,
		})
	}
	logger.Debug("gateway: serpapi search succeeded", "query", query, "results", len(results))
	return results, nil
}

func (s *SerpAPISearcher) Name() string { return "serpapi" }
