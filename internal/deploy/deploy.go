// Package deploy publishes a successful run through its deploy step.
package deploy

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/vk/burstci/internal/command"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/env"
	"github.com/vk/burstci/internal/model"
)

// Request is everything a publisher needs.
type Request struct {
	Deploy *model.Deploy
	RC     model.RunContext
	// Secrets are the resolved values of Deploy.Secrets.
	Secrets map[string]string
}

// Publisher is the publish collaborator. It is invoked at most once per run.
type Publisher interface {
	Publish(ctx context.Context, req Request) error
}

// CommandPublisher runs the deploy script through a command runner.
type CommandPublisher struct {
	runner  command.Runner
	process map[string]string
	dir     string
	out     io.Writer
	mu      sync.Mutex
}

// NewCommandPublisher creates a publisher. process is the scrubbed process
// environment; secrets are layered on top of it only for this command.
func NewCommandPublisher(runner command.Runner, process map[string]string, dir string, out io.Writer) *CommandPublisher {
	if out == nil {
		out = io.Discard
	}
	return &CommandPublisher{runner: runner, process: process, dir: dir, out: out}
}

// Publish implements Publisher.
func (p *CommandPublisher) Publish(ctx context.Context, req Request) error {
	logger := ctxlog.FromContext(ctx)
	name := req.Deploy.Name
	if name == "" {
		name = "deploy"
	}

	vars := map[string]string{
		"BURSTCI_EVENT":    req.RC.Event,
		"BURSTCI_REF":      req.RC.Ref,
		"BURSTCI_BASE_REF": req.RC.BaseRef,
	}
	environ := env.New(p.process).
		With(env.LayerJob, vars).
		With(env.LayerStep, req.Deploy.Env).
		With("secrets", req.Secrets).
		Environ()

	out := command.NewPrefixWriter(p.out, "["+name+"] ", &p.mu)
	defer out.Flush()

	logger.Info("📦 Publishing.", "deploy", name, "secrets", len(req.Secrets))
	err := p.runner.Run(ctx, command.Command{
		Script: req.Deploy.Run,
		Shell:  req.Deploy.Shell,
		Env:    environ,
		Dir:    p.dir,
		Stdout: out,
		Stderr: out,
	})
	if err != nil {
		return fmt.Errorf("deploy %q: %w", name, err)
	}
	return nil
}
