package executor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vk/burstci/internal/cache"
	"github.com/vk/burstci/internal/command"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/model"
)

// Config holds the collaborators and defaults shared by every instance.
type Config struct {
	Runner command.Runner
	// Cache is nil when caching is disabled for the run.
	Cache *cache.Manager
	// Process is the weakest environment layer.
	Process map[string]string
	// WorkDir is the directory job working directories are resolved against.
	WorkDir string
	// DefaultTimeout bounds steps when neither step nor job declares a
	// timeout. Zero means unbounded.
	DefaultTimeout time.Duration
	// Output receives step stdout and stderr, prefixed per step. Nil discards.
	Output io.Writer
}

// Executor runs job instances. It is safe for concurrent use.
type Executor struct {
	cfg      Config
	outputMu sync.Mutex
}

// New creates an executor.
func New(cfg Config) *Executor {
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	if cfg.Process == nil {
		cfg.Process = map[string]string{}
	}
	return &Executor{cfg: cfg}
}

// RunJob runs every step of inst under rc and returns the instance result.
// The returned result always has a terminal status; RunJob itself never
// returns an error.
func (e *Executor) RunJob(ctx context.Context, inst *model.JobInstance, rc model.RunContext) *JobResult {
	logger := ctxlog.FromContext(ctx).With("instance", inst.ID)
	ctx = ctxlog.WithLogger(ctx, logger)
	start := time.Now()
	logger.Info("▶️ Starting job instance", "steps", len(inst.Template.Steps))

	result := &JobResult{
		Instance: inst.ID,
		Cache:    cache.OutcomeDisabled,
		Steps:    make([]StepResult, 0, len(inst.Template.Steps)),
	}
	workDir := e.jobDir(inst.Template)

	cacheKey := e.restoreCache(ctx, inst, rc, workDir, result)

	jobEnv := jobLayer(inst, rc)
	outputs := map[string]string{}
	for _, step := range inst.Template.Steps {
		if result.Err != nil {
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Status: model.StatusSkippedDueToFailure})
			continue
		}
		sr := e.runStep(ctx, inst, rc, step, workDir, jobEnv, outputs)
		if sr.Status == model.StatusFailed {
			result.Err = fmt.Errorf("step %q: %s", step.Name, sr.Error)
		}
		for k, v := range sr.Outputs {
			outputs[k] = v
		}
		result.Steps = append(result.Steps, sr)
	}

	result.Status = model.StatusSucceeded
	if result.Err != nil {
		result.Status = model.StatusFailed
	}

	if result.Status == model.StatusSucceeded && cacheKey != "" {
		if err := e.cfg.Cache.Save(ctx, cacheKey, inst.Template.Cache, workDir); err != nil {
			logger.Warn("Cache save failed, ignoring.", "error", err)
		}
	}

	result.Duration = time.Since(start)
	if result.Err != nil {
		logger.Error("❌ Job instance failed", "error", result.Err, "duration", result.Duration)
	} else {
		logger.Info("✅ Finished job instance", "duration", result.Duration)
	}
	return result
}

// restoreCache computes the instance key and restores it. It returns the key
// to save under after the job, or "" when the instance is not cached.
func (e *Executor) restoreCache(ctx context.Context, inst *model.JobInstance, rc model.RunContext, workDir string, result *JobResult) string {
	if e.cfg.Cache == nil || inst.Template.Cache == nil || inst.Template.Cache.Key == nil {
		return ""
	}
	logger := ctxlog.FromContext(ctx)

	key, err := e.cfg.Cache.Key(inst, rc, workDir)
	if err != nil {
		logger.Warn("Cache key could not be computed, running uncached.", "error", err)
		result.Cache = cache.OutcomeMiss
		return ""
	}
	result.CacheKey = key
	result.Cache = e.cfg.Cache.Restore(ctx, key, workDir)
	return key
}

func (e *Executor) jobDir(job *model.JobTemplate) string {
	return resolveDir(e.cfg.WorkDir, job.WorkingDirectory)
}

func resolveDir(base, dir string) string {
	if dir == "" {
		return base
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

// jobLayer is the job-level environment: the job's own variables plus the
// values every step can rely on.
func jobLayer(inst *model.JobInstance, rc model.RunContext) map[string]string {
	vars := make(map[string]string, len(inst.Template.Env)+6+len(inst.Axes))
	for k, v := range inst.Template.Env {
		vars[k] = v
	}
	vars["BURSTCI_JOB"] = inst.Template.Name
	vars["BURSTCI_INSTANCE"] = inst.ID
	vars["BURSTCI_OS"] = inst.OS
	vars["BURSTCI_EVENT"] = rc.Event
	vars["BURSTCI_REF"] = rc.Ref
	vars["BURSTCI_BASE_REF"] = rc.BaseRef
	for _, av := range inst.Axes {
		vars["MATRIX_"+envName(av.Name)] = av.Value
	}
	return vars
}

// envName upper-cases name and replaces anything that is not a letter, digit
// or underscore.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
