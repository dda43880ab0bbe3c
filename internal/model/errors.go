// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the definition error taxonomy. Every problem detected
// before a run starts is reported as a *DefinitionError wrapping one of the
// sentinel kinds below, so callers can both print the offending location and
// branch on the kind with errors.Is.
package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedMatrix         = errors.New("malformed matrix")
	ErrDuplicateMatrixInstance = errors.New("duplicate matrix instance")
	ErrCyclicJobDependency     = errors.New("cyclic job dependency")
	ErrUnknownConditionField   = errors.New("unknown condition field")
	ErrUnknownDependency       = errors.New("unknown dependency")
	ErrInvalidDefinition       = errors.New("invalid definition")
)

// DefinitionError identifies where in a workflow a load-time problem was found.
type DefinitionError struct {
	Kind error
	// Job is empty for workflow-level problems.
	Job string
	// Step is set when the problem is inside a step.
	Step string
	// Field names the offending attribute, e.g. "matrix" or "if".
	Field  string
	Detail string
}

func (e *DefinitionError) Error() string {
	var loc []string
	if e.Job != "" {
		loc = append(loc, fmt.Sprintf("job %q", e.Job))
	}
	if e.Step != "" {
		loc = append(loc, fmt.Sprintf("step %q", e.Step))
	}
	if e.Field != "" {
		loc = append(loc, fmt.Sprintf("field %q", e.Field))
	}
	msg := e.Kind.Error()
	if len(loc) > 0 {
		msg += " in " + strings.Join(loc, ", ")
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DefinitionError) Unwrap() error {
	return e.Kind
}

// IsDefinitionError reports whether err carries a *DefinitionError.
func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}
