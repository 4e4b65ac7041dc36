// Package runner orchestrates the bootstrap-and-launch sequence: provision
// the isolated environment if needed, synchronize dependencies
// unconditionally, then start the server. Control flow is strictly linear
// with a single conditional branch; the first failing step aborts the
// sequence with no retries and no rollback of completed steps.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pocthealth/demohost/audit"
	"github.com/pocthealth/demohost/bootstrap"
	"github.com/pocthealth/demohost/config"
	"github.com/pocthealth/demohost/launch"
)

// Runner ties the bootstrap and launch steps together and records the run's
// lifecycle in the audit trail.
type Runner struct {
	cfg          *config.Config
	bootstrapper *bootstrap.Bootstrapper
	launcher     *launch.Launcher
	auditor      *audit.Logger
	logger       *slog.Logger
	runID        string
}

// New creates a Runner. cmdRunner may be nil for the production ExecRunner;
// auditor may be nil to disable run history.
func New(cfg *config.Config, cmdRunner bootstrap.CommandRunner, auditor *audit.Logger, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:          cfg,
		bootstrapper: bootstrap.NewBootstrapper(cfg, cmdRunner, logger),
		launcher:     launch.NewLauncher(cfg, logger),
		auditor:      auditor,
		logger:       logger.With("component", "Runner"),
		runID:        audit.NewRunID(),
	}
}

// RunID identifies this run in the audit trail.
func (r *Runner) RunID() string {
	return r.runID
}

// Bootstrapper exposes the underlying bootstrapper for supervised mode.
func (r *Runner) Bootstrapper() *bootstrap.Bootstrapper {
	return r.bootstrapper
}

// audit records a run event, logging but otherwise ignoring failures so a
// broken history database never blocks a launch.
func (r *Runner) auditEvent(record func(*audit.Logger) error) {
	if r.auditor == nil {
		return
	}
	if err := record(r.auditor); err != nil {
		r.logger.Warn("Failed to record run event", "error", err)
	}
}

// Prepare performs the bootstrap half of the sequence: idempotent
// environment provisioning followed by unconditional dependency
// synchronization.
func (r *Runner) Prepare(ctx context.Context) error {
	created, err := r.bootstrapper.EnsureEnvironment(ctx)
	if err != nil {
		return err
	}
	if created {
		r.auditEvent(func(a *audit.Logger) error {
			return a.LogEnvCreated(r.runID, r.cfg.VenvPath())
		})
	}

	if err := r.bootstrapper.SyncDependencies(ctx); err != nil {
		return err
	}
	r.auditEvent(func(a *audit.Logger) error {
		return a.LogDepsSynced(r.runID, r.cfg.RequirementsFile())
	})
	return nil
}

// Run executes the complete sequence and blocks for the server's lifetime.
// The returned error, fed through launch.ExitCodeFromError, yields the
// process exit code: launch failures propagate the child's exit code, every
// earlier failure maps to 1.
func (r *Runner) Run(ctx context.Context) error {
	r.auditEvent(func(a *audit.Logger) error {
		detail := fmt.Sprintf("port=%d address=%s entry=%s", r.cfg.Port, r.cfg.Address, r.cfg.EntryPath)
		return a.LogRunStarted(r.runID, detail)
	})

	if err := r.Prepare(ctx); err != nil {
		r.auditEvent(func(a *audit.Logger) error {
			return a.LogRunExited(r.runID, launch.ExitCodeFromError(err))
		})
		return err
	}

	err := r.launcher.Launch(ctx, r.bootstrapper.InterpreterPath())
	if err != nil {
		var launchErr *launch.LaunchError
		if errors.As(err, &launchErr) {
			r.auditEvent(func(a *audit.Logger) error {
				return a.LogLaunchFailed(r.runID, launchErr.Message, launchErr.ExitCode)
			})
		}
	}
	r.auditEvent(func(a *audit.Logger) error {
		return a.LogRunExited(r.runID, launch.ExitCodeFromError(err))
	})
	return err
}
