package dataset

import (
	"errors"
	"testing"
)

func TestNewRejectsDuplicateColumns(t *testing.T) {
	_, err := New("t", []Column{{Name: "a", Type: TypeText}, {Name: "a", Type: TypeNumber}}, nil)
	var violation *SchemaViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected SchemaViolationError, got %v", err)
	}
	if violation.Field != "a" {
		t.Fatalf("expected offending field %q, got %q", "a", violation.Field)
	}
}

func TestNewRejectsRaggedRows(t *testing.T) {
	_, err := New("t", []Column{{Name: "a", Type: TypeText}}, [][]any{{"x", "extra"}})
	var violation *SchemaViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected SchemaViolationError, got %v", err)
	}
}

func TestNewRejectsTypeMismatch(t *testing.T) {
	_, err := New("t", []Column{{Name: "n", Type: TypeNumber}}, [][]any{{"not a number"}})
	var violation *SchemaViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected SchemaViolationError, got %v", err)
	}
	if violation.Field != "n" {
		t.Fatalf("expected offending field %q, got %q", "n", violation.Field)
	}
}

func TestNewRejectsZeroColumns(t *testing.T) {
	if _, err := New("t", nil, nil); err == nil {
		t.Fatal("expected error for dataset with no columns")
	}
}

func TestNullsAreAllowedAnywhere(t *testing.T) {
	ds, err := New("t", []Column{{Name: "n", Type: TypeNumber}}, [][]any{{nil}, {float64(2)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", ds.RowCount())
	}
}

func TestWithColumnCreatesChildVersion(t *testing.T) {
	ds, err := New("t", []Column{{Name: "a", Type: TypeText}}, [][]any{{"x"}, {"y"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	child, err := ds.WithColumn(Column{Name: "b", Type: TypeNumber}, []any{float64(1), nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if child.Parent() != ds.Version() {
		t.Fatalf("child parent = %q, want %q", child.Parent(), ds.Version())
	}
	if child.Version() == ds.Version() {
		t.Fatal("child must have a new version id")
	}
	if got := len(ds.Columns()); got != 1 {
		t.Fatalf("parent mutated: has %d columns", got)
	}
	if child.Row(1)[1] != nil {
		t.Fatalf("expected null cell, got %v", child.Row(1)[1])
	}
}

func TestWithColumnRejectsExistingName(t *testing.T) {
	ds, _ := New("t", []Column{{Name: "a", Type: TypeText}}, [][]any{{"x"}})
	if _, err := ds.WithColumn(Column{Name: "a", Type: TypeText}, []any{"y"}); err == nil {
		t.Fatal("expected error for duplicate column")
	}
}

func TestWithColumnRejectsWrongLength(t *testing.T) {
	ds, _ := New("t", []Column{{Name: "a", Type: TypeText}}, [][]any{{"x"}})
	if _, err := ds.WithColumn(Column{Name: "b", Type: TypeText}, []any{"y", "z"}); err == nil {
		t.Fatal("expected error for value count mismatch")
	}
}
