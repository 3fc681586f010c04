package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/instrument-dsl/pica/pkg/client"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of pica",
		Long:    `Get daemon status, the active job, and the last temperature reading.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			cmd.Println(bold("Daemon:"))
			cmd.Printf("  Version: %s\n", st.Version)
			adapter := st.Adapter
			if adapter == "" {
				adapter = "(auto-discovered)"
			}
			cmd.Printf("  GPIB adapter: %s\n", adapter)
			cmd.Printf("  Poll interval: %s\n", st.PollInterval)
			cmd.Println()

			if st.TemperatureKelvin != nil {
				cmd.Println(bold("Cryostat:"))
				cmd.Printf("  Temperature: %s\n", bold("%.3f K", *st.TemperatureKelvin))
				if st.HeaterPercent != nil {
					cmd.Printf("  Heater output: %.1f%%\n", *st.HeaterPercent)
				}
				cmd.Println()
			}

			cmd.Println(bold("Job:"))
			if st.Job == nil || st.Job.Kind == "" {
				cmd.Println("  No job running.")
				cmd.Println("  Start one with \"pica start\".")
				return nil
			}
			printJob(cmd, st.Job)

			return nil
		},
	}
}

func printJob(cmd *cobra.Command, j *client.JobStatus) {
	cmd.Printf("  Kind: %s\n", bold("%s", j.Kind))
	cmd.Printf("  Sample: %s\n", j.Sample)
	cmd.Printf("  Phase: %s\n", phaseText(j))
	if j.Setpoint > 0 {
		cmd.Printf("  Setpoint: %.3f K\n", j.Setpoint)
	}
	cmd.Printf("  Points logged: %d\n", j.PointsDone)
	cmd.Printf("  Pausable: %s\n", bool2Text(j.CanPause))
	if j.DataFile != "" {
		cmd.Printf("  Data file: %s\n", j.DataFile)
	}
	if j.StartedAt != "" {
		cmd.Printf("  Started: %s\n", j.StartedAt)
	}
	if j.Message != "" {
		cmd.Printf("  %s\n", j.Message)
	}
	if j.LastError != "" {
		cmd.Printf("  Last error: %s\n", color.New(color.Bold, color.FgRed).Sprint(j.LastError))
	}
}

func phaseText(j *client.JobStatus) string {
	s := j.Phase
	switch j.Phase {
	case "Ramping", "Stabilizing":
		s = color.YellowString(j.Phase)
	case "Measuring":
		s = color.GreenString(j.Phase)
	case "Error":
		s = color.RedString(j.Phase)
	}
	if j.Paused {
		s += color.New(color.Bold).Sprint(" (paused)")
	}
	return s
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
