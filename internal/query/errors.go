package query

import (
	"fmt"
	"strings"
)

// UnresolvableError reports the part of a question that could not be mapped
// onto the schema or the operation vocabulary.
type UnresolvableError struct {
	Fragment   string
	Reason     string
	Candidates []string
}

func (e *UnresolvableError) Error() string {
	msg := fmt.Sprintf("cannot resolve %q: %s", e.Fragment, e.Reason)
	if len(e.Candidates) > 0 {
		msg += fmt.Sprintf(" (candidates: %s)", strings.Join(e.Candidates, ", "))
	}
	return msg
}

// PlanValidationError reports a plan step that references an unknown column
// or an unsupported operation. It always names the offending field.
type PlanValidationError struct {
	Column    string
	Operation string
	Reason    string
}

func (e *PlanValidationError) Error() string {
	var parts []string
	if e.Column != "" {
		parts = append(parts, fmt.Sprintf("column %q", e.Column))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("operation %q", e.Operation))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("invalid plan: %s", e.Reason)
	}
	return fmt.Sprintf("invalid plan: %s: %s", strings.Join(parts, ", "), e.Reason)
}
