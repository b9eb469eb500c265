package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Layouts tried in order when sniffing timestamp columns.
var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

const inferenceSampleLimit = 1000

// FromCSV parses CSV bytes into the first version of a Dataset. The first
// record is the header; column types are inferred by sampling up to 1000
// data rows. A column is numeric, boolean or temporal only when every
// non-empty sampled value parses as such; otherwise it is text. Empty cells
// become nulls.
func FromCSV(name string, r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	var raw [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(raw)+1, err)
		}
		raw = append(raw, record)
	}

	columns := make([]Column, len(header))
	for i, h := range header {
		columns[i] = Column{Name: strings.TrimSpace(h), Type: inferColumnType(raw, i)}
	}

	rows := make([][]any, len(raw))
	for r, record := range raw {
		row := make([]any, len(columns))
		for c := range columns {
			if c >= len(record) {
				row[c] = nil
				continue
			}
			cell, err := coerceCell(record[c], columns[c].Type)
			if err != nil {
				return nil, &SchemaViolationError{
					Field:  columns[c].Name,
					Reason: fmt.Sprintf("row %d: %v", r, err),
				}
			}
			row[c] = cell
		}
		rows[r] = row
	}
	return New(name, columns, rows)
}

func inferColumnType(raw [][]string, col int) Type {
	limit := len(raw)
	if limit > inferenceSampleLimit {
		limit = inferenceSampleLimit
	}
	seen := 0
	numeric, boolean, temporal := true, true, true
	for i := 0; i < limit; i++ {
		if col >= len(raw[i]) {
			continue
		}
		v := strings.TrimSpace(raw[i][col])
		if v == "" {
			continue
		}
		seen++
		if numeric {
			if _, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err != nil {
				numeric = false
			}
		}
		if boolean && !isBoolLiteral(v) {
			boolean = false
		}
		if temporal && parseTime(v) == nil {
			temporal = false
		}
		if !numeric && !boolean && !temporal {
			return TypeText
		}
	}
	if seen == 0 {
		return TypeText
	}
	switch {
	case boolean:
		return TypeBool
	case numeric:
		return TypeNumber
	case temporal:
		return TypeTime
	default:
		return TypeText
	}
}

func coerceCell(v string, t Type) (any, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	switch t {
	case TypeNumber:
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not numeric", v)
		}
		return f, nil
	case TypeBool:
		return strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || v == "1", nil
	case TypeTime:
		ts := parseTime(v)
		if ts == nil {
			return nil, fmt.Errorf("value %q is not a timestamp", v)
		}
		return *ts, nil
	default:
		return v, nil
	}
}

func isBoolLiteral(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func parseTime(v string) *time.Time {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return &ts
		}
	}
	return nil
}

// ParseTimeValue parses a timestamp literal using the same layouts as CSV
// ingestion, so filter literals and ingested cells agree.
func ParseTimeValue(v string) (time.Time, bool) {
	ts := parseTime(strings.TrimSpace(v))
	if ts == nil {
		return time.Time{}, false
	}
	return *ts, true
}
