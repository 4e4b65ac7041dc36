package bootstrap

import (
	"context"
	"fmt"
	"os"
)

// SyncDependencies brings the environment's installed packages up to date
// against the requirements manifest. It always runs, even when the
// environment already existed, so dependency drift is corrected on every
// invocation. The first failing pip invocation aborts the sequence.
func (b *Bootstrapper) SyncDependencies(ctx context.Context) error {
	manifest := b.cfg.RequirementsFile()
	if _, err := os.Stat(manifest); err != nil {
		return NewDependencyInstallError(fmt.Sprintf("requirements manifest not found at %s", manifest), err)
	}

	python := b.InterpreterPath()

	b.logger.Info("Upgrading pip", "python", python)
	if err := b.runner.Run(ctx, b.cfg.ProjectDir, python, "-m", "pip", "install", "--upgrade", "pip"); err != nil {
		return NewDependencyInstallError("failed to upgrade pip", err)
	}

	b.logger.Info("Installing requirements", "manifest", manifest)
	if err := b.runner.Run(ctx, b.cfg.ProjectDir, python, "-m", "pip", "install", "-r", manifest); err != nil {
		return NewDependencyInstallError("failed to install requirements", err)
	}

	b.logger.Info("Dependencies synchronized")
	return nil
}
