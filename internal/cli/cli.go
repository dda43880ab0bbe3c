package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vk/burstci/internal/app"
	"github.com/vk/burstci/internal/model"
	"github.com/vk/burstci/internal/report"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode returns the process exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Execute runs the command line args. Anything other than a clean success is
// returned as an *ExitError.
func Execute(ctx context.Context, args []string, out, errOut io.Writer, opts ...app.Option) error {
	root := NewRootCommand(out, errOut, opts...)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Anything cobra rejects itself is a usage error.
	return &ExitError{Code: report.ExitDefinition, Message: err.Error()}
}

// NewRootCommand builds the burstci command tree.
func NewRootCommand(out, errOut io.Writer, opts ...app.Option) *cobra.Command {
	root := &cobra.Command{
		Use:   "burstci",
		Short: "Run declarative CI pipelines locally",
		Long: `burstci expands a pipeline definition into job instances, schedules them
with bounded parallelism, and reports the outcome.

Definitions are HCL (a file or a directory of .hcl files), or a single
YAML, JSON or JSONC file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.AddCommand(
		newRunCommand(out, errOut, opts),
		newPlanCommand(out, errOut, opts),
		newValidateCommand(out, errOut, opts),
	)
	return root
}

// failure maps an application error to an exit error.
func failure(err error) *ExitError {
	if errors.Is(err, app.ErrLoad) || model.IsDefinitionError(err) {
		return &ExitError{Code: report.ExitDefinition, Message: err.Error()}
	}
	return &ExitError{Code: report.ExitFailed, Message: err.Error()}
}

func usage(err error) *ExitError {
	return &ExitError{Code: report.ExitDefinition, Message: err.Error()}
}

func newRunCommand(out, errOut io.Writer, opts []app.Option) *cobra.Command {
	var (
		common commonFlags
		run    runFlags
	)
	cmd := &cobra.Command{
		Use:   "run [flags] PATH...",
		Short: "Execute a pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.NewConfig(run.config(common.config(args)))
			if err != nil {
				return usage(err)
			}
			result, err := app.New(out, errOut, cfg, opts...).Run(cmd.Context())
			if err != nil {
				return failure(err)
			}
			if code := report.ExitCode(result.Status); code != report.ExitOK {
				return &ExitError{Code: code, Message: fmt.Sprintf("run %s: %s", result.ID, result.Status)}
			}
			return nil
		},
	}
	common.AddFlags(cmd.Flags())
	run.AddFlags(cmd.Flags())
	return cmd
}

func newPlanCommand(out, errOut io.Writer, opts []app.Option) *cobra.Command {
	var common commonFlags
	cmd := &cobra.Command{
		Use:   "plan [flags] PATH...",
		Short: "Print the expanded job instances in scheduling order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.NewConfig(common.config(args))
			if err != nil {
				return usage(err)
			}
			p, err := app.New(out, errOut, cfg, opts...).Plan(cmd.Context())
			if err != nil {
				return failure(err)
			}
			for i, stage := range p.Stages() {
				fmt.Fprintf(out, "stage %d\n", i+1)
				for _, id := range stage {
					inst := p.Instance(id)
					fmt.Fprintf(out, "  %s", id)
					if inst.OS != "" {
						fmt.Fprintf(out, " (%s)", inst.OS)
					}
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}
	common.AddFlags(cmd.Flags())
	return cmd
}

func newValidateCommand(out, errOut io.Writer, opts []app.Option) *cobra.Command {
	var common commonFlags
	cmd := &cobra.Command{
		Use:   "validate [flags] PATH...",
		Short: "Check a pipeline definition without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.NewConfig(common.config(args))
			if err != nil {
				return usage(err)
			}
			wf, err := app.New(out, errOut, cfg, opts...).Validate(cmd.Context())
			if err != nil {
				return failure(err)
			}
			fmt.Fprintf(out, "%s: %d jobs OK\n", wf.Name, len(wf.Jobs))
			return nil
		},
	}
	common.AddFlags(cmd.Flags())
	return cmd
}
