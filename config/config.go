package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort             = 8503
	DefaultAddress          = "0.0.0.0"
	DefaultEntryPath        = "streamlit-demos/Home.py"
	DefaultPythonVersion    = "python3.11"
	DefaultVenvDir          = ".venv"
	DefaultRequirementsPath = "requirements.txt"
	DefaultAuditDBPath      = "demohost.db"
)

// Supervise holds the tunables for supervised mode. Zero values are replaced
// with defaults by the supervisor itself.
type Supervise struct {
	HealthCheckInterval    time.Duration `yaml:"health_check_interval"`
	HealthCheckTimeout     time.Duration `yaml:"health_check_timeout"`
	ConsecutiveFailures    int           `yaml:"consecutive_failures"`
	RestartBackoffInitial  time.Duration `yaml:"restart_backoff_initial"`
	RestartBackoffMax      time.Duration `yaml:"restart_backoff_max"`
	GracefulShutdownPeriod time.Duration `yaml:"graceful_shutdown_period"`
	ControlPortMin         int           `yaml:"control_port_min"`
	ControlPortMax         int           `yaml:"control_port_max"`
}

// Config is the full launcher configuration. It is constructed at process
// start and treated as immutable thereafter.
type Config struct {
	Port      int    `yaml:"port"`
	Address   string `yaml:"address"`
	EntryPath string `yaml:"entry_path"`

	PythonVersion    string `yaml:"python_version"`
	VenvDir          string `yaml:"venv_dir"`
	RequirementsPath string `yaml:"requirements_path"`
	AuditDBPath      string `yaml:"audit_db_path"`

	// ProjectDir anchors every relative path above. Empty means "directory
	// containing the launcher executable".
	ProjectDir string `yaml:"project_dir"`

	Supervise Supervise `yaml:"supervise"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Port:             DefaultPort,
		Address:          DefaultAddress,
		EntryPath:        DefaultEntryPath,
		PythonVersion:    DefaultPythonVersion,
		VenvDir:          DefaultVenvDir,
		RequirementsPath: DefaultRequirementsPath,
		AuditDBPath:      DefaultAuditDBPath,
		Supervise: Supervise{
			HealthCheckInterval:    10 * time.Second,
			HealthCheckTimeout:     3 * time.Second,
			ConsecutiveFailures:    3,
			RestartBackoffInitial:  1 * time.Second,
			RestartBackoffMax:      30 * time.Second,
			GracefulShutdownPeriod: 10 * time.Second,
			ControlPortMin:         8600,
			ControlPortMax:         8699,
		},
	}
}

// LoadFile merges a YAML config file into c. A missing file is not an error
// when the path was not explicitly requested.
func (c *Config) LoadFile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays DEMOHOST_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("DEMOHOST_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DEMOHOST_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := os.Getenv("DEMOHOST_ADDRESS"); v != "" {
		c.Address = v
	}
	if v := os.Getenv("DEMOHOST_ENTRY"); v != "" {
		c.EntryPath = v
	}
	if v := os.Getenv("DEMOHOST_PYTHON"); v != "" {
		c.PythonVersion = v
	}
	if v := os.Getenv("DEMOHOST_PROJECT_DIR"); v != "" {
		c.ProjectDir = v
	}
	return nil
}

// ResolveProjectDir fills in ProjectDir when unset, using the directory
// containing the launcher executable so the binary is location-independent.
func (c *Config) ResolveProjectDir() error {
	if c.ProjectDir != "" {
		abs, err := filepath.Abs(c.ProjectDir)
		if err != nil {
			return fmt.Errorf("failed to resolve project dir %s: %w", c.ProjectDir, err)
		}
		c.ProjectDir = abs
		return nil
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate launcher executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	c.ProjectDir = filepath.Dir(exe)
	return nil
}

// ResolvePath anchors a possibly-relative path at the project directory.
func (c *Config) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.ProjectDir, path)
}

// VenvPath returns the absolute path of the virtual environment directory.
func (c *Config) VenvPath() string {
	return c.ResolvePath(c.VenvDir)
}

// EntryFile returns the absolute path of the Streamlit entry point.
func (c *Config) EntryFile() string {
	return c.ResolvePath(c.EntryPath)
}

// RequirementsFile returns the absolute path of the requirements manifest.
func (c *Config) RequirementsFile() string {
	return c.ResolvePath(c.RequirementsPath)
}

// AuditDBFile returns the absolute path of the audit database.
func (c *Config) AuditDBFile() string {
	return c.ResolvePath(c.AuditDBPath)
}

// Validate checks the handful of values the launcher itself interprets.
// Anything else is left to the downstream tools.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Address == "" {
		return fmt.Errorf("address must not be empty")
	}
	if c.EntryPath == "" {
		return fmt.Errorf("entry path must not be empty")
	}
	if s := c.Supervise; s.ControlPortMin > 0 && s.ControlPortMax > 0 && s.ControlPortMin > s.ControlPortMax {
		return fmt.Errorf("invalid control port range: min %d, max %d", s.ControlPortMin, s.ControlPortMax)
	}
	return nil
}
