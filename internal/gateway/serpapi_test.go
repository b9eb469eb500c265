package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSerpAPISearchParsesOrganicResults(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("api_key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"organic_results": [
				{"title": "Acme Corp", "snippet": "industrial supplier", "link": "https://example.com/acme"},
				{"title": "Acme Wiki", "snippet": "company history", "link": "https://example.com/wiki"},
				{"title": "Extra", "snippet": "beyond the cap", "link": "https://example.com/extra"}
			]
		}`))
	}))
	defer srv.Close()

	s := NewSerpAPISearcher("test-key", srv.URL, time.Second)
	results, err := s.Search(context.Background(), "Acme Corp company", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "Acme Corp company" || gotKey != "test-key" {
		t.Fatalf("request params q=%q api_key=%q", gotQuery, gotKey)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want capped at 2", len(results))
	}
	if results[0].Title != "Acme Corp" || results[0].URL != "https://example.com/acme" {
		t.Fatalf("first result = %+v", results[0])
	}
	if results[0].RetrievedAt.IsZero() {
		t.Fatal("retrieval time must be stamped")
	}
}

func TestSerpAPISearchNonOKStatusIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewSerpAPISearcher("k", srv.URL, time.Second)
	_, err := s.Search(context.Background(), "q", 3)
	if !IsUnavailable(err) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
}

func TestSerpAPISearchUnreachableHostIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	s := NewSerpAPISearcher("k", srv.URL, time.Second)
	_, err := s.Search(context.Background(), "q", 3)
	if !IsUnavailable(err) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
}
