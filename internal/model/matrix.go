// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the matrix declaration and the ordered axis
// combinations it expands into.
//
// Why an ordered slice of pairs instead of a map?
//
// Instance identifiers, cache keys and report rows all render the axis values
// of an instance. Keeping the pairs in declaration order makes those strings
// stable and readable ("test[os=linux,go=1.22]") while Canonical still offers
// an order-independent form for duplicate detection.
package model

import (
	"sort"
	"strings"
)

// MatrixSpec is the declarative fan-out of a job.
type MatrixSpec struct {
	Axes []Axis
	// Include adds explicit combinations after the Cartesian product.
	Include []Combination
	// Exclude removes every instance matching all pairs of a pattern.
	Exclude []Combination
}

// Axis is one named dimension of a matrix with its ordered values.
type Axis struct {
	Name   string
	Values []string
}

// AxisNames returns the declared axis names followed by any include-only keys,
// each listed once.
func (m *MatrixSpec) AxisNames() []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, a := range m.Axes {
		if !seen[a.Name] {
			seen[a.Name] = true
			names = append(names, a.Name)
		}
	}
	for _, inc := range m.Include {
		for _, p := range inc {
			if !seen[p.Name] {
				seen[p.Name] = true
				names = append(names, p.Name)
			}
		}
	}
	return names
}

// AxisValue is a single name=value pair.
type AxisValue struct {
	Name  string
	Value string
}

// Combination is an ordered set of axis values.
type Combination []AxisValue

// Get returns the value of the named axis.
func (c Combination) Get(name string) (string, bool) {
	for _, p := range c {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Map returns the combination as a map.
func (c Combination) Map() map[string]string {
	m := make(map[string]string, len(c))
	for _, p := range c {
		m[p.Name] = p.Value
	}
	return m
}

// Matches reports whether every pair of pattern is present in c.
func (c Combination) Matches(pattern Combination) bool {
	for _, p := range pattern {
		v, ok := c.Get(p.Name)
		if !ok || v != p.Value {
			return false
		}
	}
	return true
}

// String renders the pairs in their stored order, e.g. "os=linux,go=1.22".
func (c Combination) String() string {
	parts := make([]string, len(c))
	for i, p := range c {
		parts[i] = p.Name + "=" + p.Value
	}
	return strings.Join(parts, ",")
}

// Canonical renders the pairs sorted by name, so two combinations holding the
// same values in a different order compare equal.
func (c Combination) Canonical() string {
	sorted := make(Combination, len(c))
	copy(sorted, c)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted.String()
}
