package flow

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single problem found in a flow document.
type ValidationError struct {
	Flow   string // Flow name, if known
	Screen string // Screen id, empty for document level problems
	Field  string // Offending field
	Reason string // Human-readable reason for failure
}

func (e *ValidationError) Error() string {
	var where []string
	if e.Flow != "" {
		where = append(where, "flow "+e.Flow)
	}
	if e.Screen != "" {
		where = append(where, "screen "+e.Screen)
	}
	prefix := strings.Join(where, ", ")
	if prefix != "" {
		prefix += ": "
	}
	if e.Field == "" {
		return prefix + e.Reason
	}
	return fmt.Sprintf("%sfield %q: %s", prefix, e.Field, e.Reason)
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// ValidationErrors returns all validation errors if err is (or wraps) an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}

func aggregate(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: errs}
}
