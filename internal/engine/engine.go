package engine

import (
	"context"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/vk/burstci/internal/cache"
	"github.com/vk/burstci/internal/command"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/deploy"
	"github.com/vk/burstci/internal/env"
	"github.com/vk/burstci/internal/executor"
	"github.com/vk/burstci/internal/inmemorystore"
	"github.com/vk/burstci/internal/model"
	"github.com/vk/burstci/internal/nodestore"
	"github.com/vk/burstci/internal/plan"
	"github.com/vk/burstci/internal/report"
	"github.com/vk/burstci/internal/scheduler"
	"github.com/vk/burstci/internal/secrets"
	"github.com/vk/burstci/internal/trigger"
)

// Config holds the collaborators and tunables of a run. Zero values pick the
// production defaults.
type Config struct {
	// Workers bounds concurrent instances. Zero means one per instance.
	Workers       int
	DefaultPolicy model.NeedsPolicy
	// DefaultTimeout bounds steps that declare no timeout themselves.
	DefaultTimeout time.Duration
	WorkDir        string

	Runner command.Runner
	// CacheStore is nil when caching is disabled.
	CacheStore  cache.Store
	Compression cache.Compression
	Secrets     secrets.Provider
	Publisher   deploy.Publisher
	// Process is the process-wide environment. Nil captures os.Environ.
	Process map[string]string
	// Store receives live instance states, e.g. for the status server.
	Store nodestore.Store
	// Output receives step output.
	Output io.Writer
}

// Engine runs workflows.
type Engine struct {
	cfg Config
}

// New creates an engine, filling in defaults.
func New(cfg Config) *Engine {
	if cfg.Runner == nil {
		cfg.Runner = command.NewShellRunner()
	}
	if cfg.Store == nil {
		cfg.Store = inmemorystore.New()
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = model.NeedsAll
	}
	return &Engine{cfg: cfg}
}

// Store returns the node store the engine records instance states in.
func (e *Engine) Store() nodestore.Store {
	return e.cfg.Store
}

// Run drives wf to completion under rc. The returned error is reserved for
// problems that prevent the run from starting; job failures are reported
// through the run status.
func (e *Engine) Run(ctx context.Context, wf *model.Workflow, rc model.RunContext) (*report.Run, error) {
	logger := ctxlog.FromContext(ctx).With("workflow", wf.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	triggered := trigger.Matches(wf, rc)
	run := report.NewRun(wf, rc, triggered)
	logger = logger.With("runID", run.ID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("Run started.", "event", rc.Event, "ref", rc.Ref, "baseRef", rc.BaseRef)

	process := e.process(wf)
	reporter := report.NewReporter(e.publisher(process), e.cfg.Secrets)

	if !triggered {
		logger.Info("No trigger matches the event, nothing to run.")
		reporter.Finalize(ctx, run, wf.Deploy)
		return run, nil
	}

	p, err := plan.Build(wf)
	if err != nil {
		return nil, fmt.Errorf("failed to plan workflow: %w", err)
	}
	logger.Debug("Plan built.", "instances", len(p.Instances))

	var cacheManager *cache.Manager
	if e.cfg.CacheStore != nil {
		cacheManager = cache.NewManager(e.cfg.CacheStore, e.cfg.Compression)
	}
	exec := executor.New(executor.Config{
		Runner:         e.cfg.Runner,
		Cache:          cacheManager,
		Process:        process,
		WorkDir:        e.cfg.WorkDir,
		DefaultTimeout: e.cfg.DefaultTimeout,
		Output:         e.cfg.Output,
	})

	sched := scheduler.New(p, e.cfg.Store, &instanceWork{exec: exec, rc: rc}, scheduler.Config{
		Workers:       e.cfg.Workers,
		DefaultPolicy: e.cfg.DefaultPolicy,
	})
	sched.Run(ctx)

	for _, n := range sched.Nodes() {
		result, _ := e.result(ctx, n.ID())
		run.Add(n.Instance, n.Status(), result, n.Error)
	}

	status := reporter.Finalize(ctx, run, wf.Deploy)
	logger.Info("Run finished.", "status", status, "duration", run.Duration())
	return run, nil
}

func (e *Engine) result(ctx context.Context, id string) (*executor.JobResult, bool) {
	out, err := e.cfg.Store.GetOutput(ctx, id)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to read instance result.", "instance", id, "error", err)
		return nil, false
	}
	result, ok := out.(*executor.JobResult)
	return result, ok
}

// process is the process-wide layer: the captured environment without the
// deploy secrets, plus the workflow's own variables.
func (e *Engine) process(wf *model.Workflow) map[string]string {
	var scrub []string
	if wf.Deploy != nil {
		scrub = wf.Deploy.Secrets
	}
	var out map[string]string
	if e.cfg.Process != nil {
		out = maps.Clone(e.cfg.Process)
		for _, name := range scrub {
			delete(out, name)
		}
	} else {
		out = env.Process(scrub...)
	}
	maps.Copy(out, wf.Env)
	return out
}

func (e *Engine) publisher(process map[string]string) deploy.Publisher {
	if e.cfg.Publisher != nil {
		return e.cfg.Publisher
	}
	return deploy.NewCommandPublisher(e.cfg.Runner, process, e.cfg.WorkDir, e.cfg.Output)
}

// instanceWork adapts the executor to the scheduler.
type instanceWork struct {
	exec *executor.Executor
	rc   model.RunContext
}

// Gate evaluates the job condition against the instance.
func (w *instanceWork) Gate(_ context.Context, inst *model.JobInstance) (bool, error) {
	return inst.Template.Condition.Evaluate(inst.Vars(w.rc))
}

// Execute runs the instance's steps.
func (w *instanceWork) Execute(ctx context.Context, inst *model.JobInstance) (model.Status, any, error) {
	result := w.exec.RunJob(ctx, inst, w.rc)
	return result.Status, result, result.Err
}
