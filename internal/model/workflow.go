// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Workflow, the root of a pipeline definition, along
// with the trigger filters and the final deployment step.
//
// Why keep Jobs as an ordered slice?
//
// Job declaration order is observable: it drives the order instances are
// listed in plans and reports. A map would make those outputs depend on hash
// iteration order, so jobs are kept in declaration order and looked up by name
// through the Job method.
package model

import "github.com/vk/burstci/internal/condition"

// Workflow is a fully loaded pipeline definition.
type Workflow struct {
	Name string
	// Source is the path the workflow was loaded from.
	Source   string
	Triggers []Trigger
	// Env is added to the process-wide environment layer of every job.
	Env    map[string]string
	Jobs   []*JobTemplate
	Deploy *Deploy
}

// Job returns the job template with the given name, or nil.
func (w *Workflow) Job(name string) *JobTemplate {
	for _, j := range w.Jobs {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// Trigger restricts the events a workflow runs for.
type Trigger struct {
	// Event is the event kind, e.g. "push" or "pull_request".
	Event string
	// Branches are path.Match patterns. Empty means every branch.
	Branches []string
}

// Deploy is the publish step that runs once after a successful run.
type Deploy struct {
	Name      string
	Condition *condition.Expr
	Run       string
	Shell     string
	Env       map[string]string
	// Secrets are the names requested from the secrets provider. They are only
	// ever exposed to this step.
	Secrets []string
}
