package condition

import (
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Field names that may be referenced from an expression.
const (
	FieldEvent   = "event"
	FieldRef     = "ref"
	FieldBaseRef = "base_ref"
	FieldOS      = "os"
	FieldMatrix  = "matrix"
)

// Vars is everything an expression can observe.
type Vars struct {
	Event   string
	Ref     string
	BaseRef string
	OS      string
	Matrix  map[string]string
}

// Schema lists what an expression is allowed to reference.
type Schema struct {
	// Fields are the scalar roots, e.g. "event".
	Fields []string
	// Axes are the names usable as matrix.<axis>. Empty forbids matrix
	// references entirely.
	Axes []string
}

// JobSchema is the schema for job, step and cache key expressions.
func JobSchema(axes []string) Schema {
	return Schema{
		Fields: []string{FieldEvent, FieldRef, FieldBaseRef, FieldOS},
		Axes:   axes,
	}
}

// RunsOnSchema is the schema for runs_on. It is rendered while planning,
// before any run context exists, so only matrix axes are visible.
func RunsOnSchema(axes []string) Schema {
	return Schema{Axes: axes}
}

// DeploySchema is the schema for the deployment gate, which only sees the
// run context.
func DeploySchema() Schema {
	return Schema{Fields: []string{FieldEvent, FieldRef, FieldBaseRef}}
}

func (s Schema) hasField(name string) bool {
	for _, f := range s.Fields {
		if f == name {
			return true
		}
	}
	return false
}

func (s Schema) hasAxis(name string) bool {
	for _, a := range s.Axes {
		if a == name {
			return true
		}
	}
	return false
}

// evalContext builds the HCL evaluation context for vars. Axes listed in
// referenced but missing from vars.Matrix resolve to the empty string, which
// is how include-only axes look on instances that do not carry them.
func evalContext(vars Vars, referenced []string, funcs map[string]function.Function) *hcl.EvalContext {
	matrix := make(map[string]cty.Value, len(vars.Matrix)+len(referenced))
	for _, axis := range referenced {
		matrix[axis] = cty.StringVal("")
	}
	keys := make([]string, 0, len(vars.Matrix))
	for k := range vars.Matrix {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		matrix[k] = cty.StringVal(vars.Matrix[k])
	}

	matrixVal := cty.EmptyObjectVal
	if len(matrix) > 0 {
		matrixVal = cty.ObjectVal(matrix)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			FieldEvent:   cty.StringVal(vars.Event),
			FieldRef:     cty.StringVal(vars.Ref),
			FieldBaseRef: cty.StringVal(vars.BaseRef),
			FieldOS:      cty.StringVal(vars.OS),
			FieldMatrix:  matrixVal,
		},
		Functions: funcs,
	}
}
