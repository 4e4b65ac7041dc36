package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/pocthealth/demohost/bootstrap"
	"github.com/pocthealth/demohost/launch"
)

func newDoctorCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the host machine is ready to run the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags)
			cfg, err := loadConfig(flags, cmd)
			if err != nil {
				return err
			}

			b := bootstrap.NewBootstrapper(cfg, nil, logger)
			problems := 0

			check := func(ok bool, okMsg, failMsg string) {
				if ok {
					fmt.Printf("  ok    %s\n", okMsg)
				} else {
					fmt.Printf("  FAIL  %s\n", failMsg)
					problems++
				}
			}

			fmt.Printf("Project directory: %s\n", cfg.ProjectDir)

			pythonPath, err := exec.LookPath(cfg.PythonVersion)
			check(err == nil,
				fmt.Sprintf("%s found at %s", cfg.PythonVersion, pythonPath),
				fmt.Sprintf("%s not found on PATH", cfg.PythonVersion))

			check(b.IsProvisioned(),
				fmt.Sprintf("virtual environment present at %s", cfg.VenvPath()),
				fmt.Sprintf("virtual environment missing at %s (it will be created on the next run)", cfg.VenvPath()))

			_, err = os.Stat(cfg.RequirementsFile())
			check(err == nil,
				fmt.Sprintf("requirements manifest present at %s", cfg.RequirementsFile()),
				fmt.Sprintf("requirements manifest missing at %s", cfg.RequirementsFile()))

			_, err = os.Stat(cfg.EntryFile())
			check(err == nil,
				fmt.Sprintf("entry point present at %s", cfg.EntryFile()),
				fmt.Sprintf("entry point missing at %s", cfg.EntryFile()))

			check(launch.IsPortFree(cfg.Address, cfg.Port),
				fmt.Sprintf("port %d is free on %s", cfg.Port, cfg.Address),
				fmt.Sprintf("port %d is already in use on %s", cfg.Port, cfg.Address))

			if problems > 0 {
				return fmt.Errorf("%d problem(s) found", problems)
			}
			fmt.Println("All checks passed.")
			return nil
		},
	}
	addLaunchFlags(cmd)
	return cmd
}
