package condition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// traversalKey generates a stable, canonical string for an hcl.Traversal,
// e.g. matrix["os"].
func traversalKey(t hcl.Traversal) string {
	return strings.TrimSpace(string(hclwrite.TokensForTraversal(t).Bytes()))
}

// reference is a resolved field reference. Axis is set for matrix.<axis>.
type reference struct {
	Field string
	Axis  string
	Range hcl.Range
}

// Name is the user-facing spelling, e.g. "ref" or "matrix.os".
func (r reference) Name() string {
	if r.Axis != "" {
		return FieldMatrix + "." + r.Axis
	}
	return r.Field
}

// resolveTraversal maps a traversal onto the fixed field set. It only checks
// the shape; membership in a Schema is checked separately.
func resolveTraversal(t hcl.Traversal) (reference, error) {
	ref := reference{Field: t.RootName(), Range: t.SourceRange()}
	if ref.Field != FieldMatrix {
		if len(t) != 1 {
			return ref, fmt.Errorf("%w: %s has no attributes", ErrUnsupported, traversalKey(t))
		}
		return ref, nil
	}
	if len(t) != 2 {
		return ref, &UnknownFieldError{Field: traversalKey(t), Range: ref.Range}
	}
	switch step := t[1].(type) {
	case hcl.TraverseAttr:
		ref.Axis = step.Name
	case hcl.TraverseIndex:
		if !step.Key.IsKnown() || step.Key.Type() != cty.String {
			return ref, fmt.Errorf("%w: matrix axes must be indexed by a string", ErrUnsupported)
		}
		ref.Axis = step.Key.AsString()
	default:
		return ref, fmt.Errorf("%w: %s", ErrUnsupported, traversalKey(t))
	}
	return ref, nil
}

// checkReferences validates every traversal in expr against schema and
// returns the referenced matrix axes, sorted and unique.
func checkReferences(expr hcl.Expression, schema Schema) ([]string, error) {
	axes := make(map[string]struct{})
	for _, t := range expr.Variables() {
		ref, err := resolveTraversal(t)
		if err != nil {
			return nil, err
		}
		if ref.Axis != "" {
			if !schema.hasAxis(ref.Axis) {
				return nil, &UnknownFieldError{Field: ref.Name(), Range: ref.Range}
			}
			axes[ref.Axis] = struct{}{}
			continue
		}
		if !schema.hasField(ref.Field) {
			return nil, &UnknownFieldError{Field: ref.Name(), Range: ref.Range}
		}
	}

	out := make([]string, 0, len(axes))
	for a := range axes {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

// calledFunctions walks the AST collecting function names, sorted and unique.
func calledFunctions(expr hclsyntax.Expression) []string {
	seen := make(map[string]struct{})
	walkForFunctions(expr, seen)
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func walkForFunctions(expr hclsyntax.Expression, functions map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	}
}
