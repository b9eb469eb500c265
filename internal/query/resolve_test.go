package query

import (
	"errors"
	"testing"

	"github.com/datasmith-ai/datasmith/internal/dataset"
	"github.com/datasmith-ai/datasmith/internal/profile"
)

func salesProfile(t *testing.T) *profile.SchemaProfile {
	t.Helper()
	ds, err := dataset.New("sales", []dataset.Column{
		{Name: "country", Type: dataset.TypeText},
		{Name: "price", Type: dataset.TypeNumber},
		{Name: "Price_USD", Type: dataset.TypeNumber},
		{Name: "active", Type: dataset.TypeBool},
	}, [][]any{
		{"US", float64(10), float64(10), true},
		{"DE", float64(20), float64(22), false},
	})
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	return profile.Build(ds)
}

func TestResolveColumnExactMatchWinsOverFuzzy(t *testing.T) {
	prof := salesProfile(t)
	got, err := ResolveColumn("price", prof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "price" {
		t.Fatalf("resolved %q, want exact match %q", got, "price")
	}
}

func TestResolveColumnCaseInsensitive(t *testing.T) {
	prof := salesProfile(t)
	got, err := ResolveColumn("COUNTRY", prof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "country" {
		t.Fatalf("resolved %q, want %q", got, "country")
	}
}

func TestResolveColumnNearMiss(t *testing.T) {
	prof := salesProfile(t)
	got, err := ResolveColumn("countyr", prof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "country" {
		t.Fatalf("resolved %q, want %q", got, "country")
	}
}

func TestResolveColumnTooFarIsUnresolvable(t *testing.T) {
	prof := salesProfile(t)
	_, err := ResolveColumn("revenue", prof)
	var unresolvable *UnresolvableError
	if !errors.As(err, &unresolvable) {
		t.Fatalf("expected UnresolvableError, got %v", err)
	}
	if unresolvable.Fragment != "revenue" {
		t.Fatalf("fragment = %q, want %q", unresolvable.Fragment, "revenue")
	}
}

func TestResolveColumnAmbiguityIsAnErrorNotAGuess(t *testing.T) {
	ds, err := dataset.New("t", []dataset.Column{
		{Name: "prace", Type: dataset.TypeText},
		{Name: "brice", Type: dataset.TypeText},
	}, nil)
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	prof := profile.Build(ds)
	_, err = ResolveColumn("price", prof)
	var unresolvable *UnresolvableError
	if !errors.As(err, &unresolvable) {
		t.Fatalf("expected UnresolvableError, got %v", err)
	}
	if len(unresolvable.Candidates) != 2 {
		t.Fatalf("candidates = %v, want both near misses listed", unresolvable.Candidates)
	}
}

func TestResolveColumnEmptyReference(t *testing.T) {
	prof := salesProfile(t)
	if _, err := ResolveColumn("   ", prof); err == nil {
		t.Fatal("expected error for blank reference")
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"price", "price", 0},
		{"price", "prices", 1},
		{"country", "countyr", 2},
		{"kitten", "sitting", 3},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
