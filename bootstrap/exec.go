package bootstrap

import (
	"context"
	"os"
	"os/exec"
)

// CommandRunner abstracts subprocess execution so the bootstrap sequence can
// be exercised in tests without a Python toolchain on the machine.
type CommandRunner interface {
	// Run executes name with args in dir, streaming output to the launcher's
	// own stdout/stderr, and blocks until the command exits.
	Run(ctx context.Context, dir string, name string, args ...string) error
}

// ExecRunner is the production CommandRunner backed by os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
