package main

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/pocthealth/demohost/audit"
)

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var limit int
	var runID string
	var prune time.Duration

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the audit database",
		RunE: func(cmd *cobra.Command, args []string) error {
			newLogger(flags)
			cfg, err := loadConfig(flags, cmd)
			if err != nil {
				return err
			}

			db, err := sqlx.Connect("sqlite3", cfg.AuditDBFile())
			if err != nil {
				return fmt.Errorf("failed to open audit database %s: %w", cfg.AuditDBFile(), err)
			}
			defer db.Close()
			auditor, err := audit.NewLogger(db)
			if err != nil {
				return err
			}

			if prune > 0 {
				deleted, err := auditor.DeleteOldEvents(prune)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d event(s) older than %s.\n", deleted, prune)
				return nil
			}

			if runID != "" {
				return printRunEvents(auditor, runID)
			}
			return printRecentRuns(auditor, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show every event for the given run ID")
	cmd.Flags().DurationVar(&prune, "prune", 0, "Delete events older than this duration instead of listing runs")
	return cmd
}

func printRecentRuns(auditor *audit.Logger, limit int) error {
	runs, err := auditor.GetRecentRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  last=%s  events=%d\n",
			time.Unix(run.StartedAt, 0).Format(time.RFC3339), run.RunID, run.LastEvent, run.Events)
	}
	return nil
}

func printRunEvents(auditor *audit.Logger, runID string) error {
	events, err := auditor.GetRunEvents(runID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Printf("No events recorded for run %s.\n", runID)
		return nil
	}
	for _, event := range events {
		line := fmt.Sprintf("%s  %-15s", time.Unix(event.Timestamp, 0).Format(time.RFC3339), event.EventType)
		if event.ExitCode != nil {
			line += fmt.Sprintf("  exit=%d", *event.ExitCode)
		}
		if event.Detail != "" {
			line += "  " + event.Detail
		}
		fmt.Println(line)
	}
	return nil
}
