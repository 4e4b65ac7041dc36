package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pocthealth/demohost/bootstrap"
	"github.com/pocthealth/demohost/config"
	"github.com/pocthealth/demohost/control"
	"github.com/pocthealth/demohost/launch"
	"github.com/pocthealth/demohost/runner"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server under supervision with health checks and automatic restarts",
		Long: "serve performs the same bootstrap sequence as run, then keeps the Streamlit " +
			"server alive: it probes the health endpoint, restarts the process with backoff " +
			"when it crashes or turns unhealthy, re-syncs packages when requirements.txt " +
			"changes, and exposes a localhost control API for status and logs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags)
			cfg, err := loadConfig(flags, cmd)
			if err != nil {
				return err
			}

			auditor := openAudit(cfg, logger)
			r := runner.New(cfg, nil, auditor, logger)
			runID := r.RunID()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if auditor != nil {
				detail := fmt.Sprintf("mode=serve port=%d address=%s entry=%s", cfg.Port, cfg.Address, cfg.EntryPath)
				if err := auditor.LogRunStarted(runID, detail); err != nil {
					logger.Warn("Failed to record run event", "error", err)
				}
			}

			if err := r.Prepare(ctx); err != nil {
				if auditor != nil {
					if auditErr := auditor.LogRunExited(runID, launch.ExitCodeFromError(err)); auditErr != nil {
						logger.Warn("Failed to record run event", "error", auditErr)
					}
				}
				return err
			}

			supervisor := launch.NewSupervisor(cfg, r.Bootstrapper().InterpreterPath(), r.Bootstrapper(), nil, logger)
			if auditor != nil {
				supervisor.OnRestart = func(reason string) {
					if err := auditor.LogRestart(runID, reason); err != nil {
						logger.Warn("Failed to record restart event", "error", err)
					}
				}
			}

			watcher, err := bootstrap.NewRequirementsWatcher(cfg.RequirementsFile(), supervisor.RequestResync, logger)
			if err != nil {
				logger.Warn("Requirements watching disabled", "error", err)
			} else if err := watcher.Start(ctx); err != nil {
				logger.Warn("Requirements watching disabled", "error", err)
				watcher.Stop()
			} else {
				defer watcher.Stop()
			}

			if err := startControlAPI(ctx, cfg, supervisor, logger); err != nil {
				logger.Warn("Control API disabled", "error", err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				sig := <-sigChan
				logger.Info("Received signal, shutting down", "signal", sig.String())
				supervisor.Stop()
			}()

			err = supervisor.Run(ctx)
			if auditor != nil {
				if auditErr := auditor.LogRunExited(runID, launch.ExitCodeFromError(err)); auditErr != nil {
					logger.Warn("Failed to record run event", "error", auditErr)
				}
			}
			return err
		},
	}
	addLaunchFlags(cmd)
	return cmd
}

// startControlAPI brings up the localhost control API on the first free port
// in the configured range and prints the access token once to stdout. The
// server is shut down when ctx is cancelled.
func startControlAPI(ctx context.Context, cfg *config.Config, supervisor *launch.Supervisor, logger *slog.Logger) error {
	server, err := control.NewServer(supervisor, logger)
	if err != nil {
		return err
	}

	port, err := launch.FindFreePort(cfg.Supervise.ControlPortMin, cfg.Supervise.ControlPortMax)
	if err != nil {
		return err
	}

	token, err := server.Token()
	if err != nil {
		return err
	}
	fmt.Printf("Control API: http://127.0.0.1:%d\n", port)
	fmt.Printf("Control API token: %s\n", token)

	go func() {
		if err := server.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Control API server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("Control API shutdown failed", "error", err)
		}
	}()
	return nil
}
