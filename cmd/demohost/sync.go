package main

import (
	"github.com/spf13/cobra"

	"github.com/pocthealth/demohost/runner"
)

func newSyncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Provision the environment and install dependencies without launching",
		Long: "sync runs the bootstrap half of the launch sequence: it creates the virtual " +
			"environment if needed and installs the packages from requirements.txt, then exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags)
			cfg, err := loadConfig(flags, cmd)
			if err != nil {
				return err
			}

			auditor := openAudit(cfg, logger)
			r := runner.New(cfg, nil, auditor, logger)
			if err := r.Prepare(cmd.Context()); err != nil {
				return err
			}
			logger.Info("Environment is up to date", "venv", cfg.VenvPath(), "requirements", cfg.RequirementsFile())
			return nil
		},
	}
}
