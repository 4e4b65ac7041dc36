package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pocthealth/demohost/runner"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision the environment, sync dependencies, and start the server",
		Long: "run performs the full launch sequence once: create the virtual environment " +
			"if it does not exist, install the packages from requirements.txt, and start " +
			"the Streamlit server in the foreground. The command exits with the server's " +
			"exit code.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags)
			cfg, err := loadConfig(flags, cmd)
			if err != nil {
				return err
			}

			auditor := openAudit(cfg, logger)
			r := runner.New(cfg, nil, auditor, logger)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				sig := <-sigChan
				logger.Info("Received signal, shutting down", "signal", sig.String())
				cancel()
			}()

			return r.Run(ctx)
		},
	}
	addLaunchFlags(cmd)
	return cmd
}
