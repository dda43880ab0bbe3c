// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines JobTemplate and StepTemplate, the user-authored units of
// work. A template is never executed directly: the matrix expander turns each
// template into one or more JobInstance values, and only those are scheduled.
package model

import (
	"fmt"
	"time"

	"github.com/vk/burstci/internal/condition"
)

// NeedsPolicy decides how a job treats the outcome of the instances it needs.
type NeedsPolicy string

const (
	// NeedsAll requires every needed instance to finish without failing.
	NeedsAll NeedsPolicy = "all"
	// NeedsAny requires at least one needed instance to finish without failing.
	NeedsAny NeedsPolicy = "any"
)

// ParseNeedsPolicy converts a user-supplied policy name. The empty string
// parses to the empty policy, meaning "inherit the run default".
func ParseNeedsPolicy(s string) (NeedsPolicy, error) {
	switch NeedsPolicy(s) {
	case "", NeedsAll, NeedsAny:
		return NeedsPolicy(s), nil
	default:
		return "", fmt.Errorf("invalid needs policy %q: must be 'all' or 'any'", s)
	}
}

// JobTemplate is the format-agnostic representation of a job definition.
type JobTemplate struct {
	Name   string
	Matrix *MatrixSpec
	Steps  []*StepTemplate
	Needs  []string
	// NeedsPolicy is empty when the job inherits the run default.
	NeedsPolicy NeedsPolicy
	// RequireSuccess makes a condition-skipped dependency block this job.
	RequireSuccess bool
	// RunsOn renders to the instance OS. When nil the instance OS is taken
	// from the "os" matrix axis, if any.
	RunsOn           *condition.Template
	Condition        *condition.Expr
	Env              map[string]string
	Cache            *CacheSpec
	WorkingDirectory string
	// Timeout is the default timeout for steps that do not declare their own.
	Timeout time.Duration
}

// StepTemplate is a single command within a job.
type StepTemplate struct {
	Name      string
	Run       string
	Shell     string
	Condition *condition.Expr
	Env       map[string]string
	// OS limits the step to instances whose OS is listed. Empty means any OS.
	OS               []string
	Timeout          time.Duration
	WorkingDirectory string
}

// AppliesTo reports whether the step's OS guard admits the given OS.
func (s *StepTemplate) AppliesTo(os string) bool {
	if len(s.OS) == 0 {
		return true
	}
	for _, candidate := range s.OS {
		if candidate == os {
			return true
		}
	}
	return false
}

// CacheSpec describes what a job persists between runs and under which key.
type CacheSpec struct {
	Paths []string
	Key   *condition.Template
}
