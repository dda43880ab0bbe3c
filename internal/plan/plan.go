// Package plan turns a validated workflow into the instance graph the
// scheduler runs: every job expanded into its instances, each instance given
// its OS and the full set of instances it needs.
package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/burstci/internal/dag"
	"github.com/vk/burstci/internal/matrix"
	"github.com/vk/burstci/internal/model"
)

// Plan is the expanded, wired form of a workflow. It is read-only once built.
type Plan struct {
	Workflow *model.Workflow
	// Instances are in job declaration order, then expansion order.
	Instances []*model.JobInstance
	// Graph has one node per instance ID and an edge from every needed
	// instance to the instance that needs it.
	Graph *dag.Graph

	byID  map[string]*model.JobInstance
	byJob map[string][]*model.JobInstance
}

// Build expands and wires wf.
func Build(wf *model.Workflow) (*Plan, error) {
	p := &Plan{
		Workflow: wf,
		Graph:    dag.New(),
		byID:     make(map[string]*model.JobInstance),
		byJob:    make(map[string][]*model.JobInstance),
	}

	for _, job := range wf.Jobs {
		instances, err := matrix.Expand(job)
		if err != nil {
			return nil, err
		}
		for _, inst := range instances {
			os, err := resolveOS(inst)
			if err != nil {
				return nil, err
			}
			inst.OS = os
			if prev, ok := p.byID[inst.ID]; ok {
				return nil, &model.DefinitionError{
					Kind:   model.ErrInvalidDefinition,
					Job:    job.Name,
					Field:  "name",
					Detail: fmt.Sprintf("instance %s collides with an instance of job %q", inst.ID, prev.Template.Name),
				}
			}
			p.Instances = append(p.Instances, inst)
			p.byID[inst.ID] = inst
			p.byJob[job.Name] = append(p.byJob[job.Name], inst)
			p.Graph.AddNode(inst.ID)
		}
	}

	for _, inst := range p.Instances {
		seen := make(map[string]bool, len(inst.Template.Needs))
		for _, need := range inst.Template.Needs {
			if seen[need] {
				continue
			}
			seen[need] = true
			upstream, ok := p.byJob[need]
			if !ok {
				return nil, &model.DefinitionError{
					Kind:   model.ErrUnknownDependency,
					Job:    inst.Template.Name,
					Field:  "needs",
					Detail: fmt.Sprintf("job %q is not defined", need),
				}
			}
			for _, up := range upstream {
				inst.Needs = append(inst.Needs, up.ID)
				if err := p.Graph.AddEdge(up.ID, inst.ID); err != nil {
					return nil, cyclic(inst.Template.Name, err)
				}
			}
		}
	}

	if err := p.Graph.DetectCycles(); err != nil {
		return nil, cyclic("", err)
	}
	return p, nil
}

// Instance returns the instance with id, or nil.
func (p *Plan) Instance(id string) *model.JobInstance {
	return p.byID[id]
}

// JobInstances returns the instances of the named job.
func (p *Plan) JobInstances(job string) []*model.JobInstance {
	return p.byJob[job]
}

// Stages groups instance IDs so every instance follows all of its needs.
func (p *Plan) Stages() [][]string {
	stages, err := p.Graph.Levels()
	if err != nil {
		// Build rejects cyclic graphs.
		panic(err)
	}
	return stages
}

// resolveOS renders runs_on, falling back to the "os" axis.
func resolveOS(inst *model.JobInstance) (string, error) {
	if inst.Template.RunsOn == nil {
		v, _ := inst.Axes.Get("os")
		return v, nil
	}
	vars := inst.Vars(model.RunContext{})
	vars.OS = ""
	// The run context is not known yet; validation limits runs_on to matrix
	// references.
	os, err := inst.Template.RunsOn.Render(vars, nil)
	if err != nil {
		return "", &model.DefinitionError{
			Kind:   model.ErrInvalidDefinition,
			Job:    inst.Template.Name,
			Field:  "runs_on",
			Detail: fmt.Sprintf("instance %s: %v", inst.ID, err),
		}
	}
	return strings.TrimSpace(os), nil
}

func cyclic(job string, err error) error {
	var ce *dag.CycleError
	if !errors.As(err, &ce) {
		return err
	}
	return &model.DefinitionError{
		Kind:   model.ErrCyclicJobDependency,
		Job:    job,
		Field:  "needs",
		Detail: strings.Join(ce.Path, " -> "),
	}
}
