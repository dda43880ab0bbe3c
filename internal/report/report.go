// Package report assembles the outcome of a run, evaluates the deployment
// gate and renders or exports the result.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vk/burstci/internal/condition"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/deploy"
	"github.com/vk/burstci/internal/executor"
	"github.com/vk/burstci/internal/model"
	"github.com/vk/burstci/internal/secrets"
)

// Status is the outcome of a whole run.
type Status string

const (
	StatusSucceeded             Status = "Succeeded"
	StatusFailed                Status = "Failed"
	StatusSucceededDeployFailed Status = "Succeeded-DeployFailed"
)

// Exit codes of the CLI.
const (
	ExitOK           = 0
	ExitFailed       = 1
	ExitDefinition   = 2
	ExitDeployFailed = 3
)

// ExitCode maps a run status to the process exit code.
func ExitCode(s Status) int {
	switch s {
	case StatusSucceeded:
		return ExitOK
	case StatusSucceededDeployFailed:
		return ExitDeployFailed
	default:
		return ExitFailed
	}
}

// Instance is the reported state of one job instance.
type Instance struct {
	ID     string            `json:"id" yaml:"id" cbor:"id"`
	Job    string            `json:"job" yaml:"job" cbor:"job"`
	Axes   map[string]string `json:"axes,omitempty" yaml:"axes,omitempty" cbor:"axes,omitempty"`
	OS     string            `json:"os,omitempty" yaml:"os,omitempty" cbor:"os,omitempty"`
	Status model.Status      `json:"status" yaml:"status" cbor:"status"`
	Error  string            `json:"error,omitempty" yaml:"error,omitempty" cbor:"error,omitempty"`
	// Result is nil for instances that never ran.
	Result *executor.JobResult `json:"result,omitempty" yaml:"result,omitempty" cbor:"result,omitempty"`
}

// Deploy is the reported state of the deployment step.
type Deploy struct {
	Name string `json:"name" yaml:"name" cbor:"name"`
	// Gate is the value of the deploy condition.
	Gate      bool   `json:"gate" yaml:"gate" cbor:"gate"`
	Published bool   `json:"published" yaml:"published" cbor:"published"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty" cbor:"error,omitempty"`
}

// Run is the complete record of one run.
type Run struct {
	ID        string           `json:"id" yaml:"id" cbor:"id"`
	Workflow  string           `json:"workflow" yaml:"workflow" cbor:"workflow"`
	Context   model.RunContext `json:"context" yaml:"context" cbor:"context"`
	Triggered bool             `json:"triggered" yaml:"triggered" cbor:"triggered"`
	Status    Status           `json:"status" yaml:"status" cbor:"status"`
	Started   time.Time        `json:"started" yaml:"started" cbor:"started"`
	Finished  time.Time        `json:"finished" yaml:"finished" cbor:"finished"`
	Instances []Instance       `json:"instances" yaml:"instances" cbor:"instances"`
	Deploy    *Deploy          `json:"deploy,omitempty" yaml:"deploy,omitempty" cbor:"deploy,omitempty"`
}

// NewRun starts the record of a run of wf under rc.
func NewRun(wf *model.Workflow, rc model.RunContext, triggered bool) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Workflow:  wf.Name,
		Context:   rc,
		Triggered: triggered,
		Started:   time.Now(),
		Instances: []Instance{},
	}
}

// Add records the terminal state of inst. result may be nil.
func (r *Run) Add(inst *model.JobInstance, status model.Status, result *executor.JobResult, err error) {
	entry := Instance{
		ID:     inst.ID,
		Job:    inst.Template.Name,
		Axes:   inst.Axes.Map(),
		OS:     inst.OS,
		Status: status,
		Result: result,
	}
	if len(entry.Axes) == 0 {
		entry.Axes = nil
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.Instances = append(r.Instances, entry)
}

// Instance returns the entry with the given ID, or nil.
func (r *Run) Instance(id string) *Instance {
	for i := range r.Instances {
		if r.Instances[i].ID == id {
			return &r.Instances[i]
		}
	}
	return nil
}

// Duration is the wall time of the run.
func (r *Run) Duration() time.Duration {
	if r.Finished.IsZero() {
		return time.Since(r.Started)
	}
	return r.Finished.Sub(r.Started)
}

// Outcome is the run status implied by its instances: Succeeded iff every
// instance is Succeeded or Skipped.
func (r *Run) Outcome() Status {
	for _, inst := range r.Instances {
		if inst.Status != model.StatusSucceeded && inst.Status != model.StatusSkipped {
			return StatusFailed
		}
	}
	return StatusSucceeded
}

// Reporter finalizes runs and drives the deployment step.
type Reporter struct {
	publisher deploy.Publisher
	secrets   secrets.Provider
}

// NewReporter creates a reporter. Either collaborator may be nil when the
// workflow has no deploy step.
func NewReporter(publisher deploy.Publisher, provider secrets.Provider) *Reporter {
	return &Reporter{publisher: publisher, secrets: provider}
}

// Finalize computes the run status and, on success, evaluates the deployment
// gate and publishes. It must be called once every instance is terminal.
// Finalizing a run twice never publishes twice.
func (rep *Reporter) Finalize(ctx context.Context, run *Run, d *model.Deploy) Status {
	logger := ctxlog.FromContext(ctx).With("runID", run.ID)
	if run.Finished.IsZero() {
		run.Finished = time.Now()
	}
	if run.Deploy != nil {
		return run.Status
	}

	run.Status = run.Outcome()
	if run.Status != StatusSucceeded || !run.Triggered || d == nil {
		return run.Status
	}

	name := d.Name
	if name == "" {
		name = "deploy"
	}
	run.Deploy = &Deploy{Name: name}
	gate, err := d.Condition.Evaluate(condition.Vars{
		Event:   run.Context.Event,
		Ref:     run.Context.Ref,
		BaseRef: run.Context.BaseRef,
	})
	if err != nil {
		return rep.deployFailed(ctx, run, fmt.Errorf("evaluating deploy condition: %w", err))
	}
	run.Deploy.Gate = gate
	if !gate {
		logger.Info("Deploy condition is false, not publishing.", "deploy", name)
		return run.Status
	}
	if rep.publisher == nil {
		return rep.deployFailed(ctx, run, errors.New("no publisher configured"))
	}

	var resolved map[string]string
	if len(d.Secrets) > 0 {
		if rep.secrets == nil {
			return rep.deployFailed(ctx, run, errors.New("deploy requests secrets but no secrets provider is configured"))
		}
		resolved, err = rep.secrets.Resolve(ctx, d.Secrets)
		if err != nil {
			return rep.deployFailed(ctx, run, fmt.Errorf("resolving deploy secrets: %w", err))
		}
	}

	run.Deploy.Published = true
	if err := rep.publisher.Publish(ctx, deploy.Request{Deploy: d, RC: run.Context, Secrets: resolved}); err != nil {
		return rep.deployFailed(ctx, run, err)
	}
	logger.Info("✅ Deploy published.", "deploy", name)
	return run.Status
}

func (rep *Reporter) deployFailed(ctx context.Context, run *Run, err error) Status {
	ctxlog.FromContext(ctx).Error("❌ Deploy failed.", "runID", run.ID, "error", err)
	run.Deploy.Error = err.Error()
	run.Status = StatusSucceededDeployFailed
	return run.Status
}
