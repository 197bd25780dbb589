package expr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/aretw0/ussdflow/pkg/domain"
)

// Variable names visible to expressions.
const (
	VarSession = "session"
	VarInput   = "input"
)

var (
	// ErrFunctionCall is returned when an expression tries to call a function.
	ErrFunctionCall = errors.New("function calls are not allowed")
	// ErrUnknownVariable is returned when an expression references anything other than session or input.
	ErrUnknownVariable = errors.New("unknown variable")
)

// Expr is a compiled expression. It is safe for concurrent use.
type Expr struct {
	source string
	ast    hclsyntax.Expression
}

var _ domain.Expression = (*Expr)(nil)

// Compile parses src into an expression. A surrounding ${ } is optional.
func Compile(src string) (*Expr, error) {
	body := strings.TrimSpace(src)
	if strings.HasPrefix(body, "${") && strings.HasSuffix(body, "}") {
		body = strings.TrimSpace(body[2 : len(body)-1])
	}
	if body == "" {
		return nil, errors.New("empty expression")
	}

	normalized, err := normalize(body)
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", src, err)
	}

	ast, diags := hclsyntax.ParseExpression([]byte(normalized), "expression", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("expression %q: %s", src, diags.Error())
	}

	if err := check(ast); err != nil {
		return nil, fmt.Errorf("expression %q: %w", src, err)
	}
	loosen(ast)

	return &Expr{source: src, ast: ast}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and static tables.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Source returns the expression as written.
func (e *Expr) Source() string {
	return e.source
}

// Evaluate computes the expression with the given top-level variables.
func (e *Expr) Evaluate(vars map[string]any) (any, error) {
	ctx := &hcl.EvalContext{Variables: make(map[string]cty.Value, len(vars))}
	for name, v := range vars {
		cv, err := ToCty(v)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		ctx.Variables[name] = cv
	}

	val, diags := e.ast.Value(ctx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluate %q: %s", e.source, diags.Error())
	}
	return FromCty(val)
}

// check rejects function calls and references to unknown roots.
func check(ast hclsyntax.Expression) error {
	var found error
	diags := hclsyntax.VisitAll(ast, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok && found == nil {
			found = fmt.Errorf("%w: %s()", ErrFunctionCall, call.Name)
		}
		return nil
	})
	if diags.HasErrors() {
		return errors.New(diags.Error())
	}
	if found != nil {
		return found
	}

	for _, traversal := range ast.Variables() {
		switch root := traversal.RootName(); root {
		case VarSession, VarInput:
		default:
			return fmt.Errorf("%w: %s", ErrUnknownVariable, root)
		}
	}
	return nil
}

// Truthy reports whether v counts as true in a condition. nil, false, "" and 0 are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
