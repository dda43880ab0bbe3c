package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a file may hold.
type fileRoot struct {
	Workflows []*Workflow `hcl:"workflow,block"`
	Jobs      []*Job      `hcl:"job,block"`
	Remain    hcl.Body    `hcl:",remain"`
}

// Workflow is the HCL shape of the workflow block.
type Workflow struct {
	Name     string            `hcl:"name,label"`
	Triggers []*Trigger        `hcl:"on,block"`
	Env      map[string]string `hcl:"env,optional"`
	Jobs     []*Job            `hcl:"job,block"`
	Deploy   []*Deploy         `hcl:"deploy,block"`
}

// Trigger is an `on "<event>"` block.
type Trigger struct {
	Event    string   `hcl:"event,label"`
	Branches []string `hcl:"branches,optional"`
}

// Job is the HCL shape of a job block.
type Job struct {
	Name             string            `hcl:"name,label"`
	Needs            []string          `hcl:"needs,optional"`
	NeedsPolicy      string            `hcl:"needs_policy,optional"`
	RequireSuccess   bool              `hcl:"require_success,optional"`
	RunsOn           hcl.Expression    `hcl:"runs_on,optional"`
	Condition        hcl.Expression    `hcl:"condition,optional"`
	Env              map[string]string `hcl:"env,optional"`
	WorkingDirectory string            `hcl:"working_directory,optional"`
	Timeout          string            `hcl:"timeout,optional"`
	Matrix           []*Matrix         `hcl:"matrix,block"`
	Cache            []*Cache          `hcl:"cache,block"`
	Steps            []*Step           `hcl:"step,block"`
}

// Matrix is the HCL shape of a matrix block.
type Matrix struct {
	Axes    []*Axis    `hcl:"axis,block"`
	Include []*Pattern `hcl:"include,block"`
	Exclude []*Pattern `hcl:"exclude,block"`
}

// Axis is an `axis "<name>"` block.
type Axis struct {
	Name   string   `hcl:"name,label"`
	Values []string `hcl:"values"`
}

// Pattern is an include or exclude block. Its attributes are the axis/value
// pairs, kept in source order.
type Pattern struct {
	Body hcl.Body `hcl:",remain"`
}

// Cache is the HCL shape of a cache block.
type Cache struct {
	Paths []string       `hcl:"paths"`
	Key   hcl.Expression `hcl:"key"`
}

// Step is the HCL shape of a step block.
type Step struct {
	Name             string            `hcl:"name,label"`
	Run              string            `hcl:"run"`
	Shell            string            `hcl:"shell,optional"`
	Condition        hcl.Expression    `hcl:"condition,optional"`
	Env              map[string]string `hcl:"env,optional"`
	OS               []string          `hcl:"os,optional"`
	Timeout          string            `hcl:"timeout,optional"`
	WorkingDirectory string            `hcl:"working_directory,optional"`
}

// Deploy is a `deploy "<name>"` block.
type Deploy struct {
	Name      string            `hcl:"name,label"`
	Condition hcl.Expression    `hcl:"condition,optional"`
	Run       string            `hcl:"run"`
	Shell     string            `hcl:"shell,optional"`
	Env       map[string]string `hcl:"env,optional"`
	Secrets   []string          `hcl:"secrets,optional"`
}
