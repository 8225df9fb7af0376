package cleaner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// RunResult holds the captured output of an external clean command.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner resolves and executes external clean tools.
type Runner interface {
	LookPath(program string) (string, error)
	Run(ctx context.Context, dir, program string, args ...string) (*RunResult, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) LookPath(program string) (string, error) {
	return exec.LookPath(program)
}

// Run executes program in dir. A non-zero exit returns both the result
// (with ExitCode set) and an error.
func (ExecRunner) Run(ctx context.Context, dir, program string, args ...string) (*RunResult, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("%s exited with code %d: %w", program, result.ExitCode, err)
		}
		return nil, fmt.Errorf("start %s: %w", program, err)
	}
	return result, nil
}
