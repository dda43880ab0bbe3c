// Package command runs step scripts in a shell.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"time"
)

// Command is one script invocation.
type Command struct {
	Script string
	// Shell overrides the default interpreter, e.g. "bash" or "pwsh".
	Shell string
	// Env is the complete environment in KEY=VALUE form. The runner never
	// inherits the parent process environment on its own.
	Env    []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes commands. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode extracts the exit code carried by err: 0 for nil, the code for an
// *ExitError and -1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

const waitDelay = 2 * time.Second

// ShellRunner runs scripts through the platform shell.
type ShellRunner struct{}

// NewShellRunner creates a runner backed by os/exec.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

// Run implements Runner. A context that expires kills the process.
func (r *ShellRunner) Run(ctx context.Context, cmd Command) error {
	name, args := shellArgs(cmd.Shell, cmd.Script)
	c := exec.CommandContext(ctx, name, args...)
	c.Env = cmd.Env
	c.Dir = cmd.Dir
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr
	// Orphaned grandchildren may hold the output pipes open after a kill.
	c.WaitDelay = waitDelay

	err := c.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("starting %s: %w", name, err)
}

func shellArgs(shell, script string) (string, []string) {
	switch shell {
	case "":
		if runtime.GOOS == "windows" {
			return "cmd", []string{"/C", script}
		}
		return "sh", []string{"-c", script}
	case "cmd":
		return "cmd", []string{"/C", script}
	case "pwsh", "powershell":
		return shell, []string{"-NoProfile", "-Command", script}
	case "bash":
		return "bash", []string{"--noprofile", "--norc", "-eo", "pipefail", "-c", script}
	default:
		return shell, []string{"-c", script}
	}
}
