package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/datasmith-ai/datasmith/internal/common"
)

const defaultBingBase = "https://www.bing.com"

// BingSearcher implements Searcher by scraping the Bing result page. It is
// the keyless fallback when no SerpAPI key is configured.
type BingSearcher struct {
	base   string
	client *http.Client
}

// NewBingSearcher constructs the provider. base may be empty for bing.com.
func NewBingSearcher(base string, timeout time.Duration) *BingSearcher {
	if base == "" {
		base = defaultBingBase
	}
	return &BingSearcher{base: base, client: &http.Client{Timeout: timeout}}
}

func (b *BingSearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	logger := common.Logger()
	searchURL := fmt.Sprintf("%s/search?q=%s&count=%d", b.base, url.QueryEscape(query), maxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, &UnavailableError{Gateway: "search", Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	resp, err := b.client.Do(req)
	if err != nil {
		logger.Warn("gateway: bing request failed", "query", query, "error", err)
		return nil, &UnavailableError{Gateway: "search", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("bing returned status %d", resp.StatusCode)
		logger.Warn("gateway: bing request rejected", "query", query, "status", resp.StatusCode)
		return nil, &UnavailableError{Gateway: "search", Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Gateway: "search", Err: fmt.Errorf("parse bing response: %w", err)}
	}

	now := time.Now().UTC()
	results := []SearchResult{}
	doc.Find("li.b_algo").Each(func(i int, s *goquery.Selection) {
		if len(results) >= maxResults {
			return
		}
		titleElem := s.Find("h2 a")
		title := strings.TrimSpace(titleElem.Text())
		href, _ := titleElem.Attr("href")
		snippet := strings.TrimSpace(s.Find("p, .b_caption p").First().Text())
		if title == "" || href == "" {
			return
		}
		results = append(results, SearchResult{
			Title:       title,
			Snippet:     snippet,
			URL:         href,
			RetrievedAt: now,
		})
	})
	logger.Debug("gateway: bing search succeeded", "query", query, "results", len(results))
	return results, nil
}

func (b *BingSearcher) Name() string { return "bing" }
