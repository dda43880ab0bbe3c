package condition

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
)

// Template is a string template such as "go-${matrix.os}-${hash_files("go.sum")}".
// It shares the field set of conditions and may additionally call functions
// supplied at render time.
type Template struct {
	src  string
	ast  hclsyntax.Expression
	axes []string
}

// ParseTemplate parses src using HCL template syntax.
func ParseTemplate(src string) (*Template, error) {
	ast, diags := hclsyntax.ParseTemplate([]byte(src), "<template>", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing template %q: %w", src, diags)
	}
	return &Template{src: src, ast: ast}, nil
}

// TemplateFromExpression wraps a string expression decoded from an HCL file.
func TemplateFromExpression(expr hcl.Expression, file []byte) (*Template, error) {
	ast, ok := expr.(hclsyntax.Expression)
	if !ok {
		return nil, fmt.Errorf("%w: template must use native HCL syntax", ErrUnsupported)
	}
	return &Template{src: string(expr.Range().SliceBytes(file)), ast: ast}, nil
}

// String returns the template source.
func (t *Template) String() string {
	if t == nil {
		return ""
	}
	return t.src
}

// Check validates field references against schema and function calls
// against the allowed names.
func (t *Template) Check(schema Schema, functions ...string) error {
	axes, err := checkReferences(t.ast, schema)
	if err != nil {
		return err
	}
	allowed := make(map[string]bool, len(functions))
	for _, f := range functions {
		allowed[f] = true
	}
	for _, name := range calledFunctions(t.ast) {
		if !allowed[name] {
			return &UnknownFunctionError{Name: name}
		}
	}
	t.axes = axes
	return nil
}

// Functions returns the names of the functions the template calls.
func (t *Template) Functions() []string {
	return calledFunctions(t.ast)
}

// Render evaluates the template to a string.
func (t *Template) Render(vars Vars, funcs map[string]function.Function) (string, error) {
	val, diags := t.ast.Value(evalContext(vars, t.axes, funcs))
	if diags.HasErrors() {
		return "", fmt.Errorf("rendering template %q: %w", t.src, diags)
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("rendering template %q: %w", t.src, err)
	}
	if str.IsNull() || !str.IsKnown() {
		return "", fmt.Errorf("rendering template %q: result is not a known string", t.src)
	}
	return str.AsString(), nil
}
