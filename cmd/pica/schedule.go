package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/instrument-dsl/pica/pkg/client"
	"github.com/instrument-dsl/pica/pkg/job"
)

func NewScheduleCommand() *cobra.Command {
	var paramsJSON string

	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sche", "sched"},
		Short:   "Manage the automatic job schedule",
		Long: `Manage the automatic job schedule. The daemon reruns a stored set of job
parameters on a cron expression, e.g. a nightly lock-in log.

The schedule command can be used in multiple ways:
  pica schedule 'minute hour day month weekday' --params '{...}'  Set schedule
  pica schedule disable                                           Disable the schedule
  pica schedule postpone [duration]                               Postpone next run
  pica schedule skip                                              Skip next run
  pica schedule show                                              Show current schedule`,
		Example: `  pica schedule '0 2 * * *' --params '{"kind":"lockin","sampleName":"cell 4"}'
  pica schedule '0 10 * * 0' (At 10:00 on Sunday, reusing stored parameters)`,
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			return runScheduleSet(cmd, args[0], paramsJSON)
		},
	}

	cmd.Flags().StringVar(&paramsJSON, "params", "", "job parameters as JSON (stored for future runs)")

	cmd.AddCommand(
		newScheduleDisableCommand(),
		newSchedulePostponeCommand(),
		newScheduleSkipCommand(),
		newScheduleShowCommand(),
	)

	return cmd
}

func runScheduleShow(cmd *cobra.Command) error {
	resp, err := apiClient.GetSchedule()
	if err != nil {
		return fmt.Errorf("failed to get schedule: %v", err)
	}

	if resp.Cron == "" {
		cmd.Println("No schedule is set.")
		return nil
	}

	cmd.Printf("Cron: %s\n", bold("%s", resp.Cron))
	if resp.Params != nil {
		cmd.Printf("Job: %s, sample %q\n", resp.Params.Kind, resp.Params.SampleName)
	}
	for _, next := range resp.NextRuns {
		cmd.Printf("Next run: %s\n", next.Local().Format(time.DateTime))
	}
	return nil
}

func runScheduleSet(cmd *cobra.Command, cronExpr, paramsJSON string) error {
	req := client.ScheduleRequest{Cron: cronExpr}
	if paramsJSON != "" {
		var p job.Params
		if err := json.Unmarshal([]byte(paramsJSON), &p); err != nil {
			return fmt.Errorf("invalid --params JSON: %v", err)
		}
		req.Params = &p
	}

	resp, err := apiClient.SetSchedule(req)
	if err != nil {
		return fmt.Errorf("failed to set schedule: %v", err)
	}

	cmd.Println("Schedule set.")
	for _, next := range resp.NextRuns {
		cmd.Printf("Next run: %s\n", next.Local().Format(time.DateTime))
	}
	return nil
}

func newScheduleDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the job schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.SetSchedule(client.ScheduleRequest{Cron: ""}); err != nil {
				return fmt.Errorf("failed to disable schedule: %v", err)
			}
			cmd.Println("Schedule disabled.")
			return nil
		},
	}
}

func newSchedulePostponeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled run",
		Example: `  pica schedule postpone      (Postpone by 1 hour)
  pica schedule postpone 90m  (Postpone by 90 minutes)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Hour
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration: %v", err)
				}
				d = parsed
			}

			if _, err := apiClient.PostponeSchedule(d); err != nil {
				return fmt.Errorf("failed to postpone: %v", err)
			}
			cmd.Printf("Next run postponed by %s.\n", d)
			return nil
		},
	}
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the next scheduled run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.SkipSchedule(); err != nil {
				return fmt.Errorf("failed to skip: %v", err)
			}
			cmd.Println("Next run skipped.")
			return nil
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}
}
