package hcl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/burstci/internal/condition"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/model"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

func translateWorkflow(ctx context.Context, w *Workflow, src source) (*model.Workflow, error) {
	out := &model.Workflow{Name: w.Name, Env: w.Env}
	for _, tr := range w.Triggers {
		out.Triggers = append(out.Triggers, model.Trigger{Event: tr.Event, Branches: tr.Branches})
	}
	for _, j := range w.Jobs {
		job, err := translateJob(ctx, j, src)
		if err != nil {
			return nil, err
		}
		out.Jobs = append(out.Jobs, job)
	}

	switch len(w.Deploy) {
	case 0:
	case 1:
		d, err := translateDeploy(w.Deploy[0], src)
		if err != nil {
			return nil, err
		}
		out.Deploy = d
	default:
		return nil, invalid("", "deploy", "only one deploy block is allowed")
	}
	return out, nil
}

func translateJob(ctx context.Context, j *Job, src source) (*model.JobTemplate, error) {
	logger := ctxlog.FromContext(ctx).With("job", j.Name)
	logger.Debug("Translating HCL job to internal model.")

	policy, err := model.ParseNeedsPolicy(j.NeedsPolicy)
	if err != nil {
		return nil, invalid(j.Name, "needs_policy", err.Error())
	}
	timeout, err := parseDuration(j.Timeout)
	if err != nil {
		return nil, invalid(j.Name, "timeout", err.Error())
	}

	job := &model.JobTemplate{
		Name:             j.Name,
		Needs:            j.Needs,
		NeedsPolicy:      policy,
		RequireSuccess:   j.RequireSuccess,
		Env:              j.Env,
		WorkingDirectory: j.WorkingDirectory,
		Timeout:          timeout,
	}

	if isExprDefined(j.Condition) {
		if job.Condition, err = condition.FromExpression(j.Condition, src.bytes); err != nil {
			return nil, invalid(j.Name, "condition", err.Error())
		}
	}
	if isExprDefined(j.RunsOn) {
		if job.RunsOn, err = condition.TemplateFromExpression(j.RunsOn, src.bytes); err != nil {
			return nil, invalid(j.Name, "runs_on", err.Error())
		}
	}

	switch len(j.Matrix) {
	case 0:
	case 1:
		if job.Matrix, err = translateMatrix(j.Matrix[0]); err != nil {
			return nil, withJob(err, j.Name)
		}
	default:
		return nil, invalid(j.Name, "matrix", "only one matrix block is allowed")
	}

	switch len(j.Cache) {
	case 0:
	case 1:
		key, err := condition.TemplateFromExpression(j.Cache[0].Key, src.bytes)
		if err != nil {
			return nil, invalid(j.Name, "cache.key", err.Error())
		}
		job.Cache = &model.CacheSpec{Paths: j.Cache[0].Paths, Key: key}
	default:
		return nil, invalid(j.Name, "cache", "only one cache block is allowed")
	}

	for _, s := range j.Steps {
		step, err := translateStep(j.Name, s, src)
		if err != nil {
			return nil, err
		}
		job.Steps = append(job.Steps, step)
	}
	logger.Debug("Translated HCL job.", "steps", len(job.Steps), "matrix", job.Matrix != nil)
	return job, nil
}

func translateStep(job string, s *Step, src source) (*model.StepTemplate, error) {
	timeout, err := parseDuration(s.Timeout)
	if err != nil {
		return nil, &model.DefinitionError{Kind: model.ErrInvalidDefinition, Job: job, Step: s.Name, Field: "timeout", Detail: err.Error()}
	}
	step := &model.StepTemplate{
		Name:             s.Name,
		Run:              s.Run,
		Shell:            s.Shell,
		Env:              s.Env,
		OS:               s.OS,
		Timeout:          timeout,
		WorkingDirectory: s.WorkingDirectory,
	}
	if isExprDefined(s.Condition) {
		if step.Condition, err = condition.FromExpression(s.Condition, src.bytes); err != nil {
			return nil, &model.DefinitionError{Kind: model.ErrInvalidDefinition, Job: job, Step: s.Name, Field: "condition", Detail: err.Error()}
		}
	}
	return step, nil
}

func translateDeploy(d *Deploy, src source) (*model.Deploy, error) {
	out := &model.Deploy{
		Name:    d.Name,
		Run:     d.Run,
		Shell:   d.Shell,
		Env:     d.Env,
		Secrets: d.Secrets,
	}
	if isExprDefined(d.Condition) {
		var err error
		if out.Condition, err = condition.FromExpression(d.Condition, src.bytes); err != nil {
			return nil, invalid("", "deploy.condition", err.Error())
		}
	}
	return out, nil
}

func translateMatrix(m *Matrix) (*model.MatrixSpec, error) {
	spec := &model.MatrixSpec{}
	for _, a := range m.Axes {
		spec.Axes = append(spec.Axes, model.Axis{Name: a.Name, Values: a.Values})
	}
	for _, p := range m.Include {
		c, err := translatePattern(p)
		if err != nil {
			return nil, err
		}
		spec.Include = append(spec.Include, c)
	}
	for _, p := range m.Exclude {
		c, err := translatePattern(p)
		if err != nil {
			return nil, err
		}
		spec.Exclude = append(spec.Exclude, c)
	}
	return spec, nil
}

// translatePattern reads the attributes of an include or exclude block in
// source order.
func translatePattern(p *Pattern) (model.Combination, error) {
	attrs, diags := p.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, malformedMatrix(diags.Error())
	}
	list := make([]*hcl.Attribute, 0, len(attrs))
	for _, a := range attrs {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Range.Start.Byte < list[j].Range.Start.Byte })

	c := make(model.Combination, 0, len(list))
	for _, a := range list {
		val, diags := a.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, malformedMatrix(diags.Error())
		}
		str, err := convert.Convert(val, cty.String)
		if err != nil || str.IsNull() || !str.IsKnown() {
			return nil, malformedMatrix(fmt.Sprintf("value of %q must be a string", a.Name))
		}
		c = append(c, model.AxisValue{Name: a.Name, Value: str.AsString()})
	}
	return c, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

func invalid(job, field, detail string) error {
	return &model.DefinitionError{Kind: model.ErrInvalidDefinition, Job: job, Field: field, Detail: detail}
}

func malformedMatrix(detail string) error {
	return &model.DefinitionError{Kind: model.ErrMalformedMatrix, Field: "matrix", Detail: detail}
}

func withJob(err error, job string) error {
	if de, ok := err.(*model.DefinitionError); ok {
		de.Job = job
	}
	return err
}
