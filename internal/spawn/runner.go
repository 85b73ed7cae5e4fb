package spawn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// geteuid is a variable so tests can fake the privilege state.
var geteuid = os.Geteuid

// Runner is the single dispatch point for every side-effecting
// command. Privileged commands execute directly when the process is
// already root and re-invoke through sudo otherwise; dry-run mode
// substitutes printing for execution at exactly this point, so the
// printed sequence is the sequence a real run would execute.
type Runner struct {
	DryRun bool
	Output io.Writer // dry-run command stream
	Stdout io.Writer // stdout of executed commands
}

// NewRunner builds a runner for a request. With toStderr the spawned
// command's stdout is redirected to the error stream, keeping stdout
// clean for scripting.
func NewRunner(dryRun, toStderr bool) *Runner {
	stdout := io.Writer(os.Stdout)
	if toStderr {
		stdout = os.Stderr
	}
	return &Runner{
		DryRun: dryRun,
		Output: os.Stdout,
		Stdout: stdout,
	}
}

// Run executes argv as the invoking user.
func (r *Runner) Run(ctx context.Context, argv ...string) error {
	return r.dispatch(ctx, argv)
}

// RunPrivileged executes argv with superuser privilege.
func (r *Runner) RunPrivileged(ctx context.Context, argv ...string) error {
	if geteuid() != 0 {
		argv = append([]string{"sudo", "--"}, argv...)
	}
	return r.dispatch(ctx, argv)
}

func (r *Runner) dispatch(ctx context.Context, argv []string) error {
	if r.DryRun {
		_, err := fmt.Fprintln(r.Output, shellJoin(argv))
		return err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitStatusError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}
