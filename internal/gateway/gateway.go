// Package gateway holds the two external capabilities the engine depends
// on: a text-generation model and a web-search provider. Both are injected
// as interfaces; everything else in the engine treats them as black boxes
// that may fail or time out.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datasmith-ai/datasmith/internal/prompt"
)

// Model generates text for a composed prompt. Implementations must be safe
// to retry once on transient failure and must not carry side effects.
type Model interface {
	Generate(ctx context.Context, promptText string, purpose prompt.Purpose) (string, error)
	Name() string
}

// SearchResult is one ranked hit returned by a Searcher. It is ephemeral:
// the engine only keeps it when it is copied into a suggestion's provenance.
type SearchResult struct {
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	URL         string    `json:"url"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Searcher returns up to maxResults ranked results for a query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
	Name() string
}

// UnavailableError marks a gateway call that failed or timed out. Callers
// that can degrade (the enrichment tiers) detect it with IsUnavailable and
// omit the tier instead of aborting.
type UnavailableError struct {
	Gateway string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s gateway unavailable: %v", e.Gateway, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is (or wraps) a gateway failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
