package condition

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// ErrUnsupported is returned for syntax outside the condition subset.
var ErrUnsupported = errors.New("unsupported expression")

// UnknownFieldError reports a reference to a field the schema does not offer.
type UnknownFieldError struct {
	Field string
	Range hcl.Range
}

func (e *UnknownFieldError) Error() string {
	if e.Range.Filename != "" {
		return fmt.Sprintf("%s: unknown field %q", e.Range, e.Field)
	}
	return fmt.Sprintf("unknown field %q", e.Field)
}

// UnknownFunctionError reports a call to a function that is not provided.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function %q", e.Name)
}
