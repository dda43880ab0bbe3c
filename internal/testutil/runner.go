package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vk/burstci/internal/command"
	"github.com/vk/burstci/internal/env"
)

// Handler scripts the behavior of one command.
type Handler func(ctx context.Context, cmd command.Command) error

// FakeRunner is a command.Runner that never starts a process. Commands are
// matched by their exact script text; unmatched scripts succeed.
type FakeRunner struct {
	mu       sync.Mutex
	handlers map[string]Handler
	records  []ExecutionRecord
}

var _ command.Runner = (*FakeRunner)(nil)

// NewFakeRunner creates an empty fake runner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{handlers: make(map[string]Handler)}
}

// On registers h for script.
func (f *FakeRunner) On(script string, h Handler) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[script] = h
	return f
}

// Fail makes script exit with code.
func (f *FakeRunner) Fail(script string, code int) *FakeRunner {
	return f.On(script, func(context.Context, command.Command) error {
		return &command.ExitError{Code: code}
	})
}

// Sleep makes script block for d or until its context is done.
func (f *FakeRunner) Sleep(script string, d time.Duration) *FakeRunner {
	return f.On(script, func(ctx context.Context, _ command.Command) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Output makes script publish the given step outputs.
func (f *FakeRunner) Output(script string, outputs map[string]string) *FakeRunner {
	return f.On(script, func(_ context.Context, cmd command.Command) error {
		return WriteOutputs(cmd, outputs)
	})
}

// Run implements command.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd command.Command) error {
	f.mu.Lock()
	h := f.handlers[cmd.Script]
	f.mu.Unlock()

	instance, _ := lookup(cmd.Env, "BURSTCI_INSTANCE")
	rec := ExecutionRecord{Command: cmd, Instance: instance, Start: time.Now()}
	var err error
	if h != nil {
		err = h(ctx, cmd)
	}
	rec.End = time.Now()

	f.mu.Lock()
	f.records = append(f.records, rec)
	f.mu.Unlock()
	return err
}

// Records returns every command run so far, in completion order.
func (f *FakeRunner) Records() []ExecutionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ExecutionRecord, len(f.records))
	copy(out, f.records)
	return out
}

// Scripts returns the scripts run by instance, in order.
func (f *FakeRunner) Scripts(instance string) []string {
	var out []string
	for _, r := range f.Records() {
		if r.Instance == instance {
			out = append(out, r.Command.Script)
		}
	}
	return out
}

// WriteOutputs appends outputs to the file a command publishes through.
func WriteOutputs(cmd command.Command, outputs map[string]string) error {
	path, ok := lookup(cmd.Env, env.OutputFileVar)
	if !ok {
		return fmt.Errorf("%s is not set", env.OutputFileVar)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	for k, v := range outputs {
		if _, err := fmt.Fprintf(f, "%s=%s\n", k, v); err != nil {
			return err
		}
	}
	return nil
}

func lookup(environ []string, key string) (string, bool) {
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}
