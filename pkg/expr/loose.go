package expr

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// loosen makes == and != against a number literal compare string forms, so that
// input == 1 matches the answer "1". Session variables and input are mostly strings,
// and HCL equality never converts between types.
//
// The non-literal operand is wrapped in a one-part template, which converts it to a
// string, and the literal is replaced by its canonical decimal text.
func loosen(ast hclsyntax.Expression) {
	var ops []*hclsyntax.BinaryOpExpr
	hclsyntax.VisitAll(ast, func(n hclsyntax.Node) hcl.Diagnostics {
		if op, ok := n.(*hclsyntax.BinaryOpExpr); ok && (op.Op == hclsyntax.OpEqual || op.Op == hclsyntax.OpNotEqual) {
			ops = append(ops, op)
		}
		return nil
	})

	for _, op := range ops {
		switch {
		case numberLiteral(op.RHS) && !isLiteral(op.LHS):
			op.LHS, op.RHS = asString(op.LHS), literalText(op.RHS)
		case numberLiteral(op.LHS) && !isLiteral(op.RHS):
			op.LHS, op.RHS = literalText(op.LHS), asString(op.RHS)
		}
	}
}

func isLiteral(e hclsyntax.Expression) bool {
	_, ok := e.(*hclsyntax.LiteralValueExpr)
	return ok
}

func numberLiteral(e hclsyntax.Expression) bool {
	lit, ok := e.(*hclsyntax.LiteralValueExpr)
	return ok && lit.Val.Type() == cty.Number && lit.Val.IsKnown() && !lit.Val.IsNull()
}

func literalText(e hclsyntax.Expression) hclsyntax.Expression {
	lit := e.(*hclsyntax.LiteralValueExpr)
	return &hclsyntax.LiteralValueExpr{
		Val:      cty.StringVal(lit.Val.AsBigFloat().Text('f', -1)),
		SrcRange: lit.SrcRange,
	}
}

func asString(e hclsyntax.Expression) hclsyntax.Expression {
	return &hclsyntax.TemplateExpr{
		Parts:    []hclsyntax.Expression{e},
		SrcRange: e.Range(),
	}
}
