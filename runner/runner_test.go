package runner

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pocthealth/demohost/audit"
	"github.com/pocthealth/demohost/bootstrap"
	"github.com/pocthealth/demohost/config"
	"github.com/pocthealth/demohost/launch"
)

type fakeCall struct {
	Name string
	Args []string
}

// scriptedRunner simulates the external toolchain. When the venv module is
// invoked it writes a real executable script as the interpreter marker, so
// the subsequent launch step can exec it.
type scriptedRunner struct {
	t           *testing.T
	cfg         *config.Config
	calls       []fakeCall
	interpreter string // body of the fake interpreter script
	failPip     bool
}

func (f *scriptedRunner) Run(ctx context.Context, dir string, name string, args ...string) error {
	f.calls = append(f.calls, fakeCall{Name: name, Args: args})
	for _, a := range args {
		if a == "venv" {
			writeMarker(f.t, f.cfg, f.interpreter)
			return nil
		}
		if a == "pip" && f.failPip {
			return fmt.Errorf("exit status 1")
		}
	}
	return nil
}

func markerPath(cfg *config.Config) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(cfg.VenvPath(), "Scripts", "python.exe")
	}
	return filepath.Join(cfg.VenvPath(), "bin", "python")
}

func writeMarker(t *testing.T, cfg *config.Config, body string) {
	t.Helper()
	marker := markerPath(cfg)
	if err := os.MkdirAll(filepath.Dir(marker), 0755); err != nil {
		t.Fatalf("Failed to create venv dir: %v", err)
	}
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(marker, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write interpreter marker: %v", err)
	}
}

func setupRun(t *testing.T, interpreterBody string) (*config.Config, *scriptedRunner, *audit.Logger) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("Fake interpreter scripts require a POSIX shell")
	}

	cfg := config.Default()
	cfg.ProjectDir = t.TempDir()
	if err := os.WriteFile(cfg.RequirementsFile(), []byte("streamlit==1.37.0\n"), 0644); err != nil {
		t.Fatalf("Failed to write requirements manifest: %v", err)
	}

	db := sqlx.MustConnect("sqlite3", path.Join(t.TempDir(), "runs.db"))
	t.Cleanup(func() { db.Close() })
	auditor, err := audit.NewLogger(db)
	if err != nil {
		t.Fatalf("Failed to create audit logger: %v", err)
	}

	cmdRunner := &scriptedRunner{t: t, cfg: cfg, interpreter: interpreterBody}
	return cfg, cmdRunner, auditor
}

func TestRunFullSequence(t *testing.T) {
	cfg, cmdRunner, auditor := setupRun(t, "exit 0")
	r := New(cfg, cmdRunner, auditor, nil)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// venv creation, pip upgrade, requirements install.
	if len(cmdRunner.calls) != 3 {
		t.Fatalf("Expected 3 toolchain commands, got %d: %v", len(cmdRunner.calls), cmdRunner.calls)
	}

	events, err := auditor.GetRunEvents(r.RunID())
	if err != nil {
		t.Fatalf("GetRunEvents returned error: %v", err)
	}
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
	}
	want := []string{"run_started", "env_created", "deps_synced", "run_exited"}
	if len(types) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}

func TestRunSkipsEnvCreationWhenProvisioned(t *testing.T) {
	cfg, cmdRunner, auditor := setupRun(t, "exit 0")
	writeMarker(t, cfg, "exit 0")
	r := New(cfg, cmdRunner, auditor, nil)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Only the two pip commands; no venv creation.
	if len(cmdRunner.calls) != 2 {
		t.Fatalf("Expected 2 toolchain commands, got %d: %v", len(cmdRunner.calls), cmdRunner.calls)
	}

	events, err := auditor.GetRunEvents(r.RunID())
	if err != nil {
		t.Fatalf("GetRunEvents returned error: %v", err)
	}
	for _, e := range events {
		if e.EventType == string(audit.EventEnvCreated) {
			t.Error("env_created recorded for a pre-provisioned environment")
		}
	}
}

func TestRunAbortsBeforeLaunchOnInstallFailure(t *testing.T) {
	// Interpreter script would create a sentinel file if it ever ran.
	cfg, cmdRunner, auditor := setupRun(t, "touch launched.sentinel")
	cmdRunner.failPip = true
	r := New(cfg, cmdRunner, auditor, nil)

	err := r.Run(context.Background())
	if !bootstrap.IsDependencyInstallError(err) {
		t.Fatalf("Expected DependencyInstallError, got: %v", err)
	}
	if launch.ExitCodeFromError(err) != 1 {
		t.Errorf("Expected exit code 1 for install failure, got %d", launch.ExitCodeFromError(err))
	}

	sentinel := filepath.Join(cfg.ProjectDir, "launched.sentinel")
	if _, statErr := os.Stat(sentinel); statErr == nil {
		t.Error("Launch step ran despite dependency install failure")
	}

	// Environment creation is not rolled back by the failed install.
	if _, statErr := os.Stat(markerPath(cfg)); statErr != nil {
		t.Error("Provisioned environment missing after install failure")
	}
}

func TestRunPropagatesLaunchExitCode(t *testing.T) {
	cfg, cmdRunner, auditor := setupRun(t, "exit 3")
	r := New(cfg, cmdRunner, auditor, nil)

	err := r.Run(context.Background())
	if !launch.IsLaunchError(err) {
		t.Fatalf("Expected LaunchError, got: %v", err)
	}
	if launch.ExitCodeFromError(err) != 3 {
		t.Errorf("Expected exit code 3 propagated, got %d", launch.ExitCodeFromError(err))
	}

	events, eventsErr := auditor.GetRunEvents(r.RunID())
	if eventsErr != nil {
		t.Fatalf("GetRunEvents returned error: %v", eventsErr)
	}
	var sawLaunchFailed bool
	for _, e := range events {
		if e.EventType == string(audit.EventLaunchFailed) {
			sawLaunchFailed = true
			if e.ExitCode == nil || *e.ExitCode != 3 {
				t.Errorf("Expected launch_failed exit code 3, got %v", e.ExitCode)
			}
		}
	}
	if !sawLaunchFailed {
		t.Error("Expected a launch_failed event in the run history")
	}
}

func TestRunWithoutAuditor(t *testing.T) {
	cfg, cmdRunner, _ := setupRun(t, "exit 0")
	r := New(cfg, cmdRunner, nil, nil)

	if err := r.Run(context.Background()); err != nil {
		t.Errorf("Run without auditor returned error: %v", err)
	}
}

func TestPrepareIsRepeatable(t *testing.T) {
	cfg, cmdRunner, _ := setupRun(t, "exit 0")
	r := New(cfg, cmdRunner, nil, nil)

	for i := 0; i < 2; i++ {
		if err := r.Prepare(context.Background()); err != nil {
			t.Fatalf("Prepare pass %d returned error: %v", i, err)
		}
	}

	// One venv creation on the first pass, then two pip commands per pass.
	venvCalls := 0
	for _, call := range cmdRunner.calls {
		for _, a := range call.Args {
			if a == "venv" {
				venvCalls++
			}
		}
	}
	if venvCalls != 1 {
		t.Errorf("Expected exactly 1 venv creation across passes, got %d", venvCalls)
	}
	if len(cmdRunner.calls) != 5 {
		t.Errorf("Expected 5 total commands (1 venv + 4 pip), got %d", len(cmdRunner.calls))
	}
}
