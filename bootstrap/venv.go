package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pocthealth/demohost/config"
)

// Bootstrapper provisions the isolated environment and keeps its packages in
// sync. All paths come pre-resolved from the configuration.
type Bootstrapper struct {
	cfg    *config.Config
	runner CommandRunner
	logger *slog.Logger
}

// NewBootstrapper creates a Bootstrapper. A nil runner defaults to ExecRunner.
func NewBootstrapper(cfg *config.Config, runner CommandRunner, logger *slog.Logger) *Bootstrapper {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("component", "Bootstrapper"),
	}
}

// InterpreterPath returns the path of the venv interpreter executable, which
// doubles as the "environment already provisioned" marker.
func (b *Bootstrapper) InterpreterPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(b.cfg.VenvPath(), "Scripts", "python.exe")
	}
	return filepath.Join(b.cfg.VenvPath(), "bin", "python")
}

// IsProvisioned reports whether the environment marker exists.
func (b *Bootstrapper) IsProvisioned() bool {
	info, err := os.Stat(b.InterpreterPath())
	return err == nil && !info.IsDir()
}

// EnsureEnvironment creates the virtual environment if it does not already
// exist. It returns true when a new environment was created. Repeated calls
// against an existing environment are no-ops.
func (b *Bootstrapper) EnsureEnvironment(ctx context.Context) (bool, error) {
	if b.IsProvisioned() {
		b.logger.Info("Virtual environment already provisioned, skipping creation", "venv", b.cfg.VenvPath())
		return false, nil
	}

	b.logger.Info("Creating virtual environment", "python", b.cfg.PythonVersion, "venv", b.cfg.VenvPath())
	if err := b.runner.Run(ctx, b.cfg.ProjectDir, b.cfg.PythonVersion, "-m", "venv", b.cfg.VenvPath()); err != nil {
		return false, NewEnvironmentError("failed to create virtual environment", err)
	}

	if !b.IsProvisioned() {
		return false, NewEnvironmentError("virtual environment created but interpreter not found at "+b.InterpreterPath(), nil)
	}

	b.logger.Info("Virtual environment created", "venv", b.cfg.VenvPath())
	return true, nil
}
