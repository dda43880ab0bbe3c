// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the run-time inputs of a pipeline run: the RunContext
// supplied by the event source, and the JobInstance produced by matrix
// expansion.
package model

import (
	"github.com/vk/burstci/internal/condition"
)

// RunContext describes the event that triggered a run. It is read-only for the
// duration of the run.
type RunContext struct {
	Event string `json:"event" yaml:"event" cbor:"event"`
	Ref   string `json:"ref" yaml:"ref" cbor:"ref"`
	// BaseRef is the target branch of a pull request.
	BaseRef string `json:"base_ref,omitempty" yaml:"base_ref,omitempty" cbor:"base_ref,omitempty"`
}

// JobInstance is one concrete, fully axis-resolved execution of a job.
type JobInstance struct {
	// ID is "job" or "job[axis=value,...]".
	ID       string
	Template *JobTemplate
	Axes     Combination
	OS       string
	// Needs holds the IDs of every instance this instance waits for.
	Needs []string
}

// IdentifierReserved holds the characters instance identifiers use as
// separators. Job names and axis names or values must not contain them.
const IdentifierReserved = "[],="

// InstanceID formats the identifier for a job name and combination.
func InstanceID(job string, axes Combination) string {
	if len(axes) == 0 {
		return job
	}
	return job + "[" + axes.String() + "]"
}

// Vars returns the condition variables of this instance under rc.
func (i *JobInstance) Vars(rc RunContext) condition.Vars {
	return condition.Vars{
		Event:   rc.Event,
		Ref:     rc.Ref,
		BaseRef: rc.BaseRef,
		OS:      i.OS,
		Matrix:  i.Axes.Map(),
	}
}
