package main

import (
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/pocthealth/demohost/audit"
	"github.com/pocthealth/demohost/config"
	"github.com/pocthealth/demohost/launch"
)

type rootFlags struct {
	configFile string
	projectDir string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(launch.ExitCodeFromError(err))
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:          "demohost",
		Short:        "Bootstrap-and-launch host for the healthcare demo app",
		Long:         "demohost provisions the demo application's Python environment, keeps its packages in sync with requirements.txt, and starts the Streamlit server.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "Path to demohost.yaml (default: <project dir>/demohost.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.projectDir, "project-dir", "", "Project directory (default: directory containing the binary)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "json", "Log format: json or text")

	rootCmd.AddCommand(newRunCmd(flags))
	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newSyncCmd(flags))
	rootCmd.AddCommand(newDoctorCmd(flags))
	rootCmd.AddCommand(newHistoryCmd(flags))

	return rootCmd
}

// newLogger builds the process logger the way the host does everywhere:
// structured slog, JSON by default.
func newLogger(flags *rootFlags) *slog.Logger {
	var level slog.Level
	switch flags.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if flags.logFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// addLaunchFlags registers the server parameters shared by run and serve.
func addLaunchFlags(cmd *cobra.Command) {
	cmd.Flags().Int("port", config.DefaultPort, "Server port")
	cmd.Flags().String("address", config.DefaultAddress, "Server bind address")
	cmd.Flags().String("entry", config.DefaultEntryPath, "Entry point page served by Streamlit")
}

// loadConfig resolves the effective configuration: defaults, then the YAML
// config file, then DEMOHOST_* environment variables, then CLI flags.
func loadConfig(flags *rootFlags, cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	if flags.projectDir != "" {
		cfg.ProjectDir = flags.projectDir
	}
	if err := cfg.ResolveProjectDir(); err != nil {
		return nil, err
	}

	configPath := flags.configFile
	explicit := configPath != ""
	if !explicit {
		configPath = cfg.ResolvePath("demohost.yaml")
	}
	if err := cfg.LoadFile(configPath, explicit); err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	// CLI flags take highest precedence.
	if flags.projectDir != "" {
		cfg.ProjectDir = flags.projectDir
	}
	if cmd.Flags().Lookup("port") != nil && cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Lookup("address") != nil && cmd.Flags().Changed("address") {
		cfg.Address, _ = cmd.Flags().GetString("address")
	}
	if cmd.Flags().Lookup("entry") != nil && cmd.Flags().Changed("entry") {
		cfg.EntryPath, _ = cmd.Flags().GetString("entry")
	}

	// The config file may have set a relative project dir.
	if err := cfg.ResolveProjectDir(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openAudit opens the run history database. A failure is reported but never
// blocks a launch.
func openAudit(cfg *config.Config, logger *slog.Logger) *audit.Logger {
	db, err := sqlx.Connect("sqlite3", cfg.AuditDBFile())
	if err != nil {
		logger.Warn("Run history disabled, failed to open audit database", "path", cfg.AuditDBFile(), "error", err)
		return nil
	}
	auditor, err := audit.NewLogger(db)
	if err != nil {
		logger.Warn("Run history disabled, failed to initialize audit database", "path", cfg.AuditDBFile(), "error", err)
		db.Close()
		return nil
	}
	return auditor
}
