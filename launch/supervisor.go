package launch

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/pocthealth/demohost/config"
)

const (
	defaultHealthCheckInterval    = 10 * time.Second
	defaultHealthCheckTimeout     = 3 * time.Second
	defaultConsecutiveFailures    = 3
	defaultRestartBackoffInitial  = 1 * time.Second
	defaultRestartBackoffMax      = 30 * time.Second
	defaultGracefulShutdownPeriod = 10 * time.Second
	logBufferCapacity             = 1000
)

// Resyncer re-runs dependency synchronization. Satisfied by
// bootstrap.Bootstrapper.
type Resyncer interface {
	SyncDependencies(ctx context.Context) error
}

// SupervisorStatus is a point-in-time snapshot of the supervised process.
type SupervisorStatus struct {
	State        string    `json:"state"`
	PID          int       `json:"pid,omitempty"`
	Address      string    `json:"address"`
	Port         int       `json:"port"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	RestartCount int       `json:"restart_count"`
}

// Supervisor keeps a single server process running: it captures the child's
// output, probes its health endpoint, and restarts it with exponential
// backoff on crashes or persistent health check failures. The address and
// port handed to every (re)launch are exactly the configured values.
type Supervisor struct {
	cfg         *config.Config
	launcher    *Launcher
	interpreter string
	checker     HealthChecker
	resyncer    Resyncer
	logger      *slog.Logger
	logBuffer   *LogBuffer

	healthCheckInterval    time.Duration
	consecutiveFailures    int
	restartBackoffInitial  time.Duration
	restartBackoffMax      time.Duration
	gracefulShutdownPeriod time.Duration

	mu           sync.Mutex
	cmd          *exec.Cmd
	state        ProcessState
	pid          int
	startTime    time.Time
	failedChecks int
	restartCount int

	// OnRestart is invoked (outside the supervisor lock) whenever the child
	// is restarted, with a short reason string. Used for the audit trail.
	OnRestart func(reason string)

	resyncReq chan struct{}
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewSupervisor creates a Supervisor. interpreter is the venv Python the
// server is launched with. A nil checker defaults to the HTTP health checker.
func NewSupervisor(cfg *config.Config, interpreter string, resyncer Resyncer, checker HealthChecker, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}

	sup := cfg.Supervise
	interval := sup.HealthCheckInterval
	if interval == 0 {
		interval = defaultHealthCheckInterval
	}
	timeout := sup.HealthCheckTimeout
	if timeout == 0 {
		timeout = defaultHealthCheckTimeout
	}
	failures := sup.ConsecutiveFailures
	if failures == 0 {
		failures = defaultConsecutiveFailures
	}
	backoffInitial := sup.RestartBackoffInitial
	if backoffInitial == 0 {
		backoffInitial = defaultRestartBackoffInitial
	}
	backoffMax := sup.RestartBackoffMax
	if backoffMax == 0 {
		backoffMax = defaultRestartBackoffMax
	}
	grace := sup.GracefulShutdownPeriod
	if grace == 0 {
		grace = defaultGracefulShutdownPeriod
	}
	if checker == nil {
		checker = NewHTTPHealthChecker(timeout)
	}

	return &Supervisor{
		cfg:                    cfg,
		launcher:               NewLauncher(cfg, logger),
		interpreter:            interpreter,
		checker:                checker,
		resyncer:               resyncer,
		logger:                 logger.With("component", "Supervisor"),
		logBuffer:              NewLogBuffer(logBufferCapacity),
		healthCheckInterval:    interval,
		consecutiveFailures:    failures,
		restartBackoffInitial:  backoffInitial,
		restartBackoffMax:      backoffMax,
		gracefulShutdownPeriod: grace,
		state:                  StateUnknown,
		resyncReq:              make(chan struct{}, 1),
		stopChan:               make(chan struct{}),
	}
}

// Logs returns the log buffer for the supervised process.
func (s *Supervisor) Logs() *LogBuffer {
	return s.logBuffer
}

// Status returns a snapshot of the supervised process.
func (s *Supervisor) Status() SupervisorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SupervisorStatus{
		State:        s.state.String(),
		PID:          s.pid,
		Address:      s.cfg.Address,
		Port:         s.cfg.Port,
		StartedAt:    s.startTime,
		RestartCount: s.restartCount,
	}
}

// RequestResync asks the supervisor to stop the child, re-run dependency
// synchronization and relaunch. Non-blocking; duplicate requests coalesce.
func (s *Supervisor) RequestResync() {
	select {
	case s.resyncReq <- struct{}{}:
	default:
	}
}

// Stop shuts the supervisor down, terminating the child gracefully.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Supervisor) setState(state ProcessState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run launches and babysits the server process until Stop is called or ctx
// is cancelled. It only returns an error when the very first launch fails;
// later failures are handled by restarting.
func (s *Supervisor) Run(ctx context.Context) error {
	firstLaunch := true
	for {
		select {
		case <-s.stopChan:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		s.mu.Lock()
		restartCount := s.restartCount
		s.mu.Unlock()
		if backoff := calculateBackoff(restartCount, s.restartBackoffInitial, s.restartBackoffMax); backoff > 0 {
			s.logger.Info("Applying restart backoff", "duration", backoff, "restartCount", restartCount)
			select {
			case <-time.After(backoff):
			case <-s.stopChan:
				return nil
			case <-ctx.Done():
				return nil
			}
		}

		exitCh, err := s.startProcess(ctx)
		if err != nil {
			s.setState(StateFailed)
			if firstLaunch {
				return err
			}
			s.recordRestart("start failed")
			continue
		}
		firstLaunch = false

		stopping := s.monitor(ctx, exitCh)
		if stopping {
			s.wg.Wait()
			return nil
		}
	}
}

// startProcess spawns the server with its output piped into the log buffer.
func (s *Supervisor) startProcess(ctx context.Context) (<-chan error, error) {
	cmd := s.launcher.command(s.interpreter)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, NewLaunchError("failed to get stdout pipe", -1, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdoutPipe.Close()
		return nil, NewLaunchError("failed to get stderr pipe", -1, err)
	}

	s.setState(StateStarting)
	s.logger.Info("Starting server process", "command", cmd.String())
	if err := cmd.Start(); err != nil {
		stdoutPipe.Close()
		stderrPipe.Close()
		return nil, NewLaunchError("failed to start server process", -1, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.startTime = time.Now()
	s.failedChecks = 0
	s.mu.Unlock()

	pid := cmd.Process.Pid
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer stdoutPipe.Close()
		scanner := bufio.NewScanner(stdoutPipe)
		for scanner.Scan() {
			s.logBuffer.AddEntry("stdout", scanner.Text(), pid)
		}
	}()
	go func() {
		defer s.wg.Done()
		defer stderrPipe.Close()
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			s.logBuffer.AddEntry("stderr", scanner.Text(), pid)
		}
	}()

	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	s.logger.Info("Server process started", "pid", pid, "address", s.cfg.Address, "port", s.cfg.Port)
	return exitCh, nil
}

// monitor watches one incarnation of the child. It returns true when the
// supervisor should shut down, false when the child should be restarted.
func (s *Supervisor) monitor(ctx context.Context, exitCh <-chan error) bool {
	ticker := time.NewTicker(s.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-exitCh:
			s.logger.Error("Server process exited unexpectedly", "error", err)
			s.setState(StateFailed)
			s.recordRestart("process exited")
			return false

		case <-ticker.C:
			if s.checkHealth() {
				continue
			}
			s.logger.Error("Server persistently unhealthy, restarting")
			s.terminate(exitCh)
			s.setState(StateFailed)
			s.recordRestart("persistently unhealthy")
			return false

		case <-s.resyncReq:
			s.logger.Info("Resync requested, stopping server for dependency synchronization")
			s.terminate(exitCh)
			if s.resyncer != nil {
				if err := s.resyncer.SyncDependencies(ctx); err != nil {
					s.logger.Error("Dependency resync failed, relaunching with previous environment", "error", err)
				}
			}
			s.recordRestart("requirements changed")
			return false

		case <-s.stopChan:
			s.logger.Info("Supervisor stopping")
			s.terminate(exitCh)
			s.setState(StateStopped)
			return true

		case <-ctx.Done():
			s.logger.Info("Supervisor context cancelled")
			s.terminate(exitCh)
			s.setState(StateStopped)
			return true
		}
	}
}

// checkHealth probes the child once and returns false when the consecutive
// failure threshold has been crossed.
func (s *Supervisor) checkHealth() bool {
	state, err := s.checker.Check(s.cfg.Port)

	s.mu.Lock()
	defer s.mu.Unlock()

	if state == StateRunning {
		if s.state != StateRunning {
			s.logger.Info("Server is healthy", "pid", s.pid)
		}
		s.state = StateRunning
		s.failedChecks = 0
		s.restartCount = 0
		return true
	}

	s.failedChecks++
	s.logger.Warn("Health check failed", "failures", s.failedChecks, "error", err)
	if s.state == StateRunning {
		s.state = StateUnhealthy
	}
	return s.failedChecks < s.consecutiveFailures
}

// terminate stops the current child: SIGTERM, then SIGKILL after the
// graceful shutdown period.
func (s *Supervisor) terminate(exitCh <-chan error) {
	s.mu.Lock()
	cmd := s.cmd
	pid := s.pid
	s.state = StateStopping
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		s.logger.Error("Failed to signal server process", "pid", pid, "error", err)
	}

	timer := time.NewTimer(s.gracefulShutdownPeriod)
	defer timer.Stop()

	select {
	case <-exitCh:
		s.logger.Info("Server exited after interrupt", "pid", pid)
	case <-timer.C:
		s.logger.Warn("Server did not exit gracefully, sending SIGKILL", "pid", pid)
		if err := cmd.Process.Kill(); err != nil {
			s.logger.Error("Failed to kill server process", "pid", pid, "error", err)
			return
		}
		<-exitCh
	}
}

func (s *Supervisor) recordRestart(reason string) {
	s.mu.Lock()
	s.restartCount++
	s.cmd = nil
	s.pid = 0
	s.mu.Unlock()

	if s.OnRestart != nil {
		s.OnRestart(reason)
	}
}

// calculateBackoff computes the delay before a restart attempt, doubling
// from initialDelay up to maxDelay.
func calculateBackoff(restartCount int, initialDelay, maxDelay time.Duration) time.Duration {
	if restartCount <= 0 {
		return 0
	}
	backoff := initialDelay
	for i := 1; i < restartCount; i++ {
		backoff *= 2
		if backoff > maxDelay {
			return maxDelay
		}
	}
	return backoff
}
