package config

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/vk/burstci/internal/cache"
	"github.com/vk/burstci/internal/condition"
	"github.com/vk/burstci/internal/dag"
	"github.com/vk/burstci/internal/matrix"
	"github.com/vk/burstci/internal/model"
)

// Field names used in definition errors.
const (
	FieldCondition = "condition"
	FieldRunsOn    = "runs_on"
	FieldCacheKey  = "cache.key"
)

// Validate checks wf. The first problem found is returned as a
// *model.DefinitionError.
func Validate(wf *model.Workflow) error {
	if len(wf.Jobs) == 0 {
		return invalid("", "jobs", "workflow declares no jobs")
	}
	if err := validateTriggers(wf.Triggers); err != nil {
		return err
	}

	seen := make(map[string]bool, len(wf.Jobs))
	for _, job := range wf.Jobs {
		if job.Name == "" {
			return invalid("", "name", "job with an empty name")
		}
		if strings.ContainsAny(job.Name, model.IdentifierReserved) {
			return invalid(job.Name, "name", fmt.Sprintf("job name must not contain any of %q", model.IdentifierReserved))
		}
		if seen[job.Name] {
			return invalid(job.Name, "name", "job is declared twice")
		}
		seen[job.Name] = true
	}

	for _, job := range wf.Jobs {
		if err := validateJob(wf, job); err != nil {
			return err
		}
	}
	if err := checkJobCycles(wf); err != nil {
		return err
	}
	return validateDeploy(wf.Deploy)
}

func validateTriggers(triggers []model.Trigger) error {
	for i, tr := range triggers {
		if tr.Event == "" {
			return invalid("", "on", fmt.Sprintf("trigger %d has no event", i))
		}
		for _, pattern := range tr.Branches {
			if _, err := path.Match(pattern, ""); err != nil {
				return invalid("", "branches", fmt.Sprintf("trigger %q: bad branch pattern %q", tr.Event, pattern))
			}
		}
	}
	return nil
}

func validateJob(wf *model.Workflow, job *model.JobTemplate) error {
	if _, err := model.ParseNeedsPolicy(string(job.NeedsPolicy)); err != nil {
		return invalid(job.Name, "needs_policy", err.Error())
	}
	if job.Timeout < 0 {
		return invalid(job.Name, "timeout", "timeout must not be negative")
	}
	for _, need := range job.Needs {
		if need == job.Name {
			return &model.DefinitionError{
				Kind:   model.ErrCyclicJobDependency,
				Job:    job.Name,
				Field:  "needs",
				Detail: job.Name + " -> " + job.Name,
			}
		}
		if wf.Job(need) == nil {
			return &model.DefinitionError{
				Kind:   model.ErrUnknownDependency,
				Job:    job.Name,
				Field:  "needs",
				Detail: fmt.Sprintf("job %q is not defined", need),
			}
		}
	}

	// Expansion performs every structural matrix check, including
	// duplicate detection.
	if _, err := matrix.Expand(job); err != nil {
		return err
	}
	var axes []string
	if job.Matrix != nil {
		axes = job.Matrix.AxisNames()
	}
	schema := condition.JobSchema(axes)

	if err := job.Condition.Check(schema); err != nil {
		return conditionError(err, job.Name, "", FieldCondition)
	}
	if job.RunsOn != nil {
		if err := job.RunsOn.Check(condition.RunsOnSchema(axes)); err != nil {
			return conditionError(err, job.Name, "", FieldRunsOn)
		}
	}
	if err := validateCache(job, schema); err != nil {
		return err
	}

	if len(job.Steps) == 0 {
		return invalid(job.Name, "steps", "job declares no steps")
	}
	steps := make(map[string]bool, len(job.Steps))
	for _, step := range job.Steps {
		if step.Name == "" {
			return invalid(job.Name, "steps", "step with an empty name")
		}
		if steps[step.Name] {
			return &model.DefinitionError{Kind: model.ErrInvalidDefinition, Job: job.Name, Step: step.Name, Field: "name", Detail: "step is declared twice"}
		}
		steps[step.Name] = true
		if step.Run == "" {
			return &model.DefinitionError{Kind: model.ErrInvalidDefinition, Job: job.Name, Step: step.Name, Field: "run", Detail: "step has no command"}
		}
		if step.Timeout < 0 {
			return &model.DefinitionError{Kind: model.ErrInvalidDefinition, Job: job.Name, Step: step.Name, Field: "timeout", Detail: "timeout must not be negative"}
		}
		if err := step.Condition.Check(schema); err != nil {
			return conditionError(err, job.Name, step.Name, FieldCondition)
		}
	}
	return nil
}

func validateCache(job *model.JobTemplate, schema condition.Schema) error {
	spec := job.Cache
	if spec == nil {
		return nil
	}
	if len(spec.Paths) == 0 {
		return invalid(job.Name, "cache.paths", "cache declares no paths")
	}
	if spec.Key == nil {
		return invalid(job.Name, FieldCacheKey, "cache declares no key")
	}
	if err := spec.Key.Check(schema, cache.HashFilesFunction); err != nil {
		return conditionError(err, job.Name, "", FieldCacheKey)
	}
	return nil
}

func validateDeploy(d *model.Deploy) error {
	if d == nil {
		return nil
	}
	if d.Run == "" {
		return invalid("", "deploy.run", "deploy has no command")
	}
	if err := d.Condition.Check(condition.DeploySchema()); err != nil {
		return conditionError(err, "", "", "deploy."+FieldCondition)
	}
	return nil
}

// checkJobCycles detects cycles in the job-level needs graph, which is
// cheaper and reads better in errors than the instance graph.
func checkJobCycles(wf *model.Workflow) error {
	g := dag.New()
	for _, job := range wf.Jobs {
		g.AddNode(job.Name)
	}
	for _, job := range wf.Jobs {
		for _, need := range job.Needs {
			if err := g.AddEdge(need, job.Name); err != nil {
				return err
			}
		}
	}
	err := g.DetectCycles()
	var ce *dag.CycleError
	if errors.As(err, &ce) {
		return &model.DefinitionError{
			Kind:   model.ErrCyclicJobDependency,
			Job:    ce.Path[0],
			Field:  "needs",
			Detail: fmt.Sprint(ce),
		}
	}
	return err
}

// conditionError maps a condition or template check failure to its
// definition error kind.
func conditionError(err error, job, step, field string) error {
	kind := model.ErrInvalidDefinition
	var unknown *condition.UnknownFieldError
	if errors.As(err, &unknown) {
		kind = model.ErrUnknownConditionField
	}
	return &model.DefinitionError{Kind: kind, Job: job, Step: step, Field: field, Detail: err.Error()}
}

func invalid(job, field, detail string) error {
	return &model.DefinitionError{Kind: model.ErrInvalidDefinition, Job: job, Field: field, Detail: detail}
}
