package condition

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Expr is a parsed gating condition. A nil *Expr is unconditional.
type Expr struct {
	src string
	ast hclsyntax.Expression
	// axes are the matrix axes the expression references.
	axes    []string
	checked bool
}

// Parse parses src as a condition. The result must be checked with Check
// before it is evaluated.
func Parse(src string) (*Expr, error) {
	ast, diags := hclsyntax.ParseExpression([]byte(src), "<condition>", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing condition %q: %w", src, diags)
	}
	return &Expr{src: src, ast: ast}, nil
}

// FromExpression wraps an expression decoded from an HCL file. file is the
// full source the expression was parsed from and is used to recover the text.
func FromExpression(expr hcl.Expression, file []byte) (*Expr, error) {
	ast, ok := expr.(hclsyntax.Expression)
	if !ok {
		return nil, fmt.Errorf("%w: condition must use native HCL syntax", ErrUnsupported)
	}
	src := string(expr.Range().SliceBytes(file))
	return &Expr{src: src, ast: ast}, nil
}

// String returns the source text of the condition.
func (e *Expr) String() string {
	if e == nil {
		return ""
	}
	return e.src
}

// Check validates the expression against schema. It rejects unknown fields,
// syntax outside the condition subset, and expressions that do not produce a
// boolean.
func (e *Expr) Check(schema Schema) error {
	if e == nil {
		return nil
	}
	axes, err := checkReferences(e.ast, schema)
	if err != nil {
		return err
	}
	k, err := kindOf(e.ast)
	if err != nil {
		return err
	}
	if k != kindBool {
		return fmt.Errorf("%w: condition %q does not produce a boolean", ErrUnsupported, e.src)
	}
	e.axes = axes
	e.checked = true
	return nil
}

// Evaluate reports whether the condition holds for vars. A nil expression
// always holds.
func (e *Expr) Evaluate(vars Vars) (bool, error) {
	if e == nil {
		return true, nil
	}
	if !e.checked {
		return false, fmt.Errorf("condition %q evaluated before being checked", e.src)
	}
	val, diags := e.ast.Value(evalContext(vars, e.axes, nil))
	if diags.HasErrors() {
		return false, fmt.Errorf("evaluating condition %q: %w", e.src, diags)
	}
	if val.IsNull() || !val.IsKnown() || val.Type() != cty.Bool {
		return false, fmt.Errorf("condition %q did not produce a boolean", e.src)
	}
	return val.True(), nil
}

// Evaluate is the functional form of Expr.Evaluate.
func Evaluate(e *Expr, vars Vars) (bool, error) {
	return e.Evaluate(vars)
}

type kind int

const (
	kindString kind = iota
	kindBool
)

// kindOf type-checks the restricted grammar and returns the result kind.
func kindOf(expr hclsyntax.Expression) (kind, error) {
	switch e := expr.(type) {
	case *hclsyntax.LiteralValueExpr:
		switch e.Val.Type() {
		case cty.String:
			return kindString, nil
		case cty.Bool:
			return kindBool, nil
		}
		return 0, unsupported(e.SrcRange, "only string and boolean literals are allowed")

	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			k, err := kindOf(part)
			if err != nil {
				return 0, err
			}
			if k != kindString {
				return 0, unsupported(part.Range(), "template parts must be strings")
			}
		}
		return kindString, nil

	case *hclsyntax.TemplateWrapExpr:
		k, err := kindOf(e.Wrapped)
		if err != nil {
			return 0, err
		}
		if k != kindString {
			return 0, unsupported(e.SrcRange, "template parts must be strings")
		}
		return kindString, nil

	case *hclsyntax.ScopeTraversalExpr:
		return kindString, nil

	case *hclsyntax.ParenthesesExpr:
		return kindOf(e.Expression)

	case *hclsyntax.UnaryOpExpr:
		if e.Op != hclsyntax.OpLogicalNot {
			return 0, unsupported(e.SrcRange, "only ! is allowed as a unary operator")
		}
		k, err := kindOf(e.Val)
		if err != nil {
			return 0, err
		}
		if k != kindBool {
			return 0, unsupported(e.SrcRange, "! needs a boolean operand")
		}
		return kindBool, nil

	case *hclsyntax.BinaryOpExpr:
		lhs, err := kindOf(e.LHS)
		if err != nil {
			return 0, err
		}
		rhs, err := kindOf(e.RHS)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case hclsyntax.OpEqual, hclsyntax.OpNotEqual:
			if lhs != rhs {
				return 0, unsupported(e.SrcRange, "cannot compare a string with a boolean")
			}
			return kindBool, nil
		case hclsyntax.OpLogicalAnd, hclsyntax.OpLogicalOr:
			if lhs != kindBool || rhs != kindBool {
				return 0, unsupported(e.SrcRange, "&& and || need boolean operands")
			}
			return kindBool, nil
		}
		return 0, unsupported(e.SrcRange, "only ==, !=, && and || are allowed")
	}
	return 0, unsupported(expr.Range(), fmt.Sprintf("%T is not allowed in a condition", expr))
}

func unsupported(rng hcl.Range, msg string) error {
	return fmt.Errorf("%w at %s: %s", ErrUnsupported, rng, msg)
}
