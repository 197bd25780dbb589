package domain

import (
	"encoding/json"
	"strings"
)

// Expression is a compiled, side-effect free expression.
// Implementations live outside the domain (see pkg/expr).
type Expression interface {
	// Source returns the expression text as written in the flow document.
	Source() string
	// Evaluate computes the value against the given top-level variables
	// (e.g. "session" and "input").
	Evaluate(vars map[string]any) (any, error)
}

// Target is a "next" reference: a static screen id or a ${...} expression.
type Target struct {
	Raw string
	// Expr is set when Raw is a dynamic expression compiled at load time.
	Expr Expression
}

// StaticTarget builds a target pointing at a fixed screen.
func StaticTarget(id string) Target {
	return Target{Raw: id}
}

// IsZero reports whether the target is empty.
func (t Target) IsZero() bool {
	return t.Raw == "" && t.Expr == nil
}

// IsDynamic reports whether the target must be evaluated.
func (t Target) IsDynamic() bool {
	return t.Expr != nil || IsExpression(t.Raw)
}

// MarshalJSON encodes the target as its raw text.
func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Raw)
}

// UnmarshalJSON decodes a raw target. Expressions are compiled lazily by the executor.
func (t *Target) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Raw = raw
	t.Expr = nil
	return nil
}

// IsExpression reports whether s is a ${...} expression reference.
func IsExpression(s string) bool {
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") && len(s) > 3
}

// ExpressionBody strips the ${ } delimiters.
func ExpressionBody(s string) string {
	if !IsExpression(s) {
		return s
	}
	return strings.TrimSpace(s[2 : len(s)-1])
}
