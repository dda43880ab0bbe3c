package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vk/burstci/internal/command"
	"github.com/vk/burstci/internal/condition"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/env"
	"github.com/vk/burstci/internal/model"
)

// runStep gates and runs one step. It never returns an error; failures are
// recorded in the result.
func (e *Executor) runStep(
	ctx context.Context,
	inst *model.JobInstance,
	rc model.RunContext,
	step *model.StepTemplate,
	jobDir string,
	jobEnv, outputs map[string]string,
) StepResult {
	logger := ctxlog.FromContext(ctx).With("step", step.Name)
	sr := StepResult{Name: step.Name}

	ok, err := condition.Evaluate(step.Condition, inst.Vars(rc))
	if err != nil {
		return failed(sr, fmt.Errorf("evaluating condition: %w", err))
	}
	if !ok {
		logger.Info("Step condition is false, skipping.")
		sr.Status = model.StatusSkipped
		return sr
	}
	if !step.AppliesTo(inst.OS) {
		logger.Info("Step does not apply to this OS, skipping.", "os", inst.OS)
		sr.Status = model.StatusSkipped
		return sr
	}

	outputFile, err := os.CreateTemp("", "burstci-output-*")
	if err != nil {
		return failed(sr, fmt.Errorf("creating output file: %w", err))
	}
	outputPath := outputFile.Name()
	outputFile.Close()
	defer os.Remove(outputPath)

	stepEnv := make(map[string]string, len(step.Env)+1)
	for k, v := range step.Env {
		stepEnv[k] = v
	}
	stepEnv[env.OutputFileVar] = outputPath

	environ := env.New(e.cfg.Process).
		With(env.LayerJob, jobEnv).
		With(env.LayerStepOutputs, outputs).
		With(env.LayerStep, stepEnv).
		Environ()

	timeout := firstPositive(step.Timeout, inst.Template.Timeout, e.cfg.DefaultTimeout)
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out := command.NewPrefixWriter(e.cfg.Output, "["+inst.ID+"/"+step.Name+"] ", &e.outputMu)
	defer out.Flush()

	logger.Debug("Running step.", "timeout", timeout)
	start := time.Now()
	err = e.cfg.Runner.Run(runCtx, command.Command{
		Script: step.Run,
		Shell:  step.Shell,
		Env:    environ,
		Dir:    resolveDir(jobDir, step.WorkingDirectory),
		Stdout: out,
		Stderr: out,
	})
	sr.Duration = time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s", timeout)
		}
		logger.Warn("Step failed.", "error", err, "duration", sr.Duration)
		sr.ExitCode = command.ExitCode(err)
		return failed(sr, err)
	}

	published, err := env.ReadOutputFile(outputPath)
	if err != nil {
		return failed(sr, fmt.Errorf("reading step outputs: %w", err))
	}
	if len(published) > 0 {
		sr.Outputs = published
	}
	sr.Status = model.StatusSucceeded
	logger.Debug("Step succeeded.", "duration", sr.Duration, "outputs", len(published))
	return sr
}

func failed(sr StepResult, err error) StepResult {
	sr.Status = model.StatusFailed
	sr.Error = err.Error()
	if sr.ExitCode == 0 {
		sr.ExitCode = -1
	}
	return sr
}

func firstPositive(ds ...time.Duration) time.Duration {
	for _, d := range ds {
		if d > 0 {
			return d
		}
	}
	return 0
}
