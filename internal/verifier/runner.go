package verifier

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Runner executes an external command
type Runner interface {
	// Run executes name with args, streaming stdout and stderr to out
	Run(ctx context.Context, name string, args []string, out io.Writer) error
}

// ExecRunner implements Runner by executing processes
type ExecRunner struct{}

// NewExecRunner creates a new process runner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and fails on a non-zero exit status
func (r *ExecRunner) Run(ctx context.Context, name string, args []string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("%s exited with status %d: %w", name, exitErr.ExitCode(), err)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}
