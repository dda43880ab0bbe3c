// Package matrix expands a job template into its concrete instances.
//
// Expansion is computed once, before scheduling: the Cartesian product of the
// declared axes, then every include entry appended as an extra combination,
// then every combination matching an exclude pattern removed.
package matrix

import (
	"fmt"
	"strings"

	"github.com/vk/burstci/internal/model"
)

// Expand returns the ordered instances of tmpl. A template without a matrix
// yields exactly one instance with an empty axis set. Needs and OS are left
// for the planner to resolve.
func Expand(tmpl *model.JobTemplate) ([]*model.JobInstance, error) {
	if tmpl.Matrix == nil {
		return []*model.JobInstance{{ID: tmpl.Name, Template: tmpl}}, nil
	}

	combos, err := Combinations(tmpl.Matrix)
	if err != nil {
		return nil, withJob(err, tmpl.Name)
	}

	instances := make([]*model.JobInstance, 0, len(combos))
	for _, c := range combos {
		instances = append(instances, &model.JobInstance{
			ID:       model.InstanceID(tmpl.Name, c),
			Template: tmpl,
			Axes:     c,
		})
	}
	return instances, nil
}

// Combinations expands spec into its ordered, unique combinations.
func Combinations(spec *model.MatrixSpec) ([]model.Combination, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}

	combos := product(spec.Axes)
	for _, inc := range spec.Include {
		c := make(model.Combination, len(inc))
		copy(c, inc)
		combos = append(combos, c)
	}

	kept := combos[:0]
	for _, c := range combos {
		if !excluded(c, spec.Exclude) {
			kept = append(kept, c)
		}
	}

	seen := make(map[string]bool, len(kept))
	for _, c := range kept {
		key := c.Canonical()
		if seen[key] {
			return nil, &model.DefinitionError{
				Kind:   model.ErrDuplicateMatrixInstance,
				Field:  "matrix",
				Detail: fmt.Sprintf("combination %s is produced more than once", key),
			}
		}
		seen[key] = true
	}

	if len(kept) == 0 {
		return nil, malformed("matrix expands to zero instances")
	}
	return kept, nil
}

// Validate checks the structural rules of a matrix without expanding it.
func Validate(spec *model.MatrixSpec) error {
	if len(spec.Axes) == 0 && len(spec.Include) == 0 {
		return malformed("matrix declares no axes and no include entries")
	}

	known := make(map[string]bool)
	for _, axis := range spec.Axes {
		if axis.Name == "" {
			return malformed("axis with an empty name")
		}
		if known[axis.Name] {
			return malformed(fmt.Sprintf("axis %q is declared twice", axis.Name))
		}
		if len(axis.Values) == 0 {
			return malformed(fmt.Sprintf("axis %q has no values", axis.Name))
		}
		if reserved(axis.Name) {
			return malformed(fmt.Sprintf("axis name %q contains one of %q", axis.Name, model.IdentifierReserved))
		}
		for _, v := range axis.Values {
			if reserved(v) {
				return malformed(fmt.Sprintf("axis %q value %q contains one of %q", axis.Name, v, model.IdentifierReserved))
			}
		}
		known[axis.Name] = true
	}

	for i, inc := range spec.Include {
		if len(inc) == 0 {
			return malformed(fmt.Sprintf("include entry %d is empty", i))
		}
		if err := checkPairs(inc, fmt.Sprintf("include entry %d", i)); err != nil {
			return err
		}
		for _, p := range inc {
			known[p.Name] = true
		}
	}

	for i, exc := range spec.Exclude {
		if len(exc) == 0 {
			return malformed(fmt.Sprintf("exclude entry %d is empty", i))
		}
		if err := checkPairs(exc, fmt.Sprintf("exclude entry %d", i)); err != nil {
			return err
		}
		for _, p := range exc {
			if !known[p.Name] {
				return malformed(fmt.Sprintf("exclude entry %d references unknown axis %q", i, p.Name))
			}
		}
	}
	return nil
}

// product computes the Cartesian product in axis declaration order, then
// value declaration order; the last axis varies fastest.
func product(axes []model.Axis) []model.Combination {
	if len(axes) == 0 {
		return nil
	}
	combos := []model.Combination{{}}
	for _, axis := range axes {
		next := make([]model.Combination, 0, len(combos)*len(axis.Values))
		for _, prefix := range combos {
			for _, v := range axis.Values {
				c := make(model.Combination, len(prefix), len(prefix)+1)
				copy(c, prefix)
				next = append(next, append(c, model.AxisValue{Name: axis.Name, Value: v}))
			}
		}
		combos = next
	}
	return combos
}

func excluded(c model.Combination, patterns []model.Combination) bool {
	for _, p := range patterns {
		if c.Matches(p) {
			return true
		}
	}
	return false
}

func checkPairs(c model.Combination, what string) error {
	seen := make(map[string]bool, len(c))
	for _, p := range c {
		if p.Name == "" {
			return malformed(what + " has an empty key")
		}
		if seen[p.Name] {
			return malformed(fmt.Sprintf("%s sets %q twice", what, p.Name))
		}
		if reserved(p.Name) || reserved(p.Value) {
			return malformed(fmt.Sprintf("%s pair %s=%s contains one of %q", what, p.Name, p.Value, model.IdentifierReserved))
		}
		seen[p.Name] = true
	}
	return nil
}

// reserved reports whether s would make a rendered combination ambiguous.
func reserved(s string) bool {
	return strings.ContainsAny(s, model.IdentifierReserved)
}

func malformed(detail string) error {
	return &model.DefinitionError{Kind: model.ErrMalformedMatrix, Field: "matrix", Detail: detail}
}

func withJob(err error, job string) error {
	if de, ok := err.(*model.DefinitionError); ok {
		de.Job = job
	}
	return err
}
