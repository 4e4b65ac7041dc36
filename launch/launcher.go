package launch

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/pocthealth/demohost/config"
)

// Launcher builds and runs the Streamlit server command.
type Launcher struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewLauncher creates a Launcher for the given configuration.
func NewLauncher(cfg *config.Config, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		cfg:    cfg,
		logger: logger.With("component", "Launcher"),
	}
}

// Args returns the argument vector handed to the venv interpreter. The
// address and port are passed through exactly as configured.
func (l *Launcher) Args() []string {
	return []string{
		"-m", "streamlit", "run", l.cfg.EntryFile(),
		"--server.port", strconv.Itoa(l.cfg.Port),
		"--server.address", l.cfg.Address,
	}
}

// command constructs the server process. interpreter is the venv Python.
func (l *Launcher) command(interpreter string) *exec.Cmd {
	cmd := exec.Command(interpreter, l.Args()...)
	cmd.Dir = l.cfg.ProjectDir
	cmd.Env = os.Environ()
	return cmd
}

// Launch starts the server with stdio inherited and blocks for its lifetime.
// This is the terminal action of a plain run: a clean exit returns nil, any
// failure returns a LaunchError carrying the child's exit code. Cancelling
// ctx relays an interrupt to the child and, after the graceful shutdown
// period, kills it.
func (l *Launcher) Launch(ctx context.Context, interpreter string) error {
	cmd := l.command(interpreter)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	l.logger.Info("Launching server", "command", cmd.String(), "address", l.cfg.Address, "port", l.cfg.Port)
	if err := cmd.Start(); err != nil {
		return NewLaunchError("failed to start server process", -1, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return l.exitResult(err)
	case <-ctx.Done():
	}

	l.logger.Info("Interrupting server process", "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		l.logger.Error("Failed to signal server process", "pid", cmd.Process.Pid, "error", err)
	}

	grace := l.cfg.Supervise.GracefulShutdownPeriod
	if grace <= 0 {
		grace = 10 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-done:
		return l.exitResult(err)
	case <-timer.C:
		l.logger.Warn("Server did not exit gracefully, killing", "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil {
			return NewLaunchError("failed to kill server process", -1, err)
		}
		return l.exitResult(<-done)
	}
}

func (l *Launcher) exitResult(waitErr error) error {
	if waitErr == nil {
		l.logger.Info("Server exited cleanly")
		return nil
	}
	code := -1
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	}
	l.logger.Error("Server exited with error", "exitCode", code, "error", waitErr)
	return NewLaunchError("server process exited", code, waitErr)
}
