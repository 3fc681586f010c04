package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/instrument-dsl/pica/pkg/job"
)

func runStart(p job.Params) error {
	ret, err := apiClient.StartJob(p)
	if err != nil {
		return fmt.Errorf("failed to start %s: %v", p.Kind, err)
	}

	if ret != "" {
		logrus.Infof("daemon responded: %s", ret)
	}

	logrus.Infof("successfully started %s, watch it with \"pica status\"", p.Kind)

	return nil
}

func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Short:   "Start a measurement job",
		GroupID: gBasic,
		Long: `Start a measurement job on the daemon.

Only one job can run at a time; the daemon owns the GPIB bus while a job is
active. Every job writes a tab-separated data file into the configured data
directory.`,
	}

	cmd.AddCommand(
		newStartIVCommand(),
		newStartHighResIVCommand(),
		newStartDeltaRTCommand(),
		newStartPyroCommand(),
		newStartRampCommand(),
		newStartCVCommand(),
		newStartLockinCommand(),
	)

	return cmd
}

func addTempFlags(cmd *cobra.Command, p *job.Params) {
	f := cmd.Flags()
	f.Float64Var(&p.Setpoint, "setpoint", 0, "target temperature (K)")
	f.Float64Var(&p.RampRate, "ramp-rate", 2, "ramp rate (K/min)")
	f.StringVar(&p.HeaterRange, "heater-range", "medium", "heater range (off, low, medium, high)")
	_ = cmd.MarkFlagRequired("setpoint")
}

func newStartIVCommand() *cobra.Command {
	p := job.Params{Kind: job.KindIVSweep}
	cmd := &cobra.Command{
		Use:   "iv",
		Short: "Bipolar I-V sweep on the source meter",
		Long: `Source current through the sample and record voltage, tracing the full
bipolar loop 0 -> +I -> 0 -> -I -> 0 -> +I. With --nanovolt the 6221 sources
and the 2182 reads voltage instead of the 2400 doing both.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStart(p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.SampleName, "sample", "", "sample name (used in the data file name)")
	f.Float64Var(&p.MaxCurrent, "max-current", 0, "sweep amplitude (A)")
	f.Float64Var(&p.CurrentStep, "step", 0, "current step (A)")
	f.Float64Var(&p.Compliance, "compliance", 10, "voltage compliance (V)")
	f.Float64Var(&p.SettleSeconds, "settle", 0.5, "dwell after each set point (s)")
	f.BoolVar(&p.UseNanovolt, "nanovolt", false, "source with the 6221 and read voltage on the 2182")
	_ = cmd.MarkFlagRequired("sample")
	_ = cmd.MarkFlagRequired("max-current")
	_ = cmd.MarkFlagRequired("step")
	return cmd
}

func newStartHighResIVCommand() *cobra.Command {
	p := job.Params{Kind: job.KindHighResIV}
	cmd := &cobra.Command{
		Use:   "hr-iv",
		Short: "High-resistance I-V sweep on the electrometer",
		Long: `Sweep the electrometer voltage source and record current. The input is
zero-checked and zero-corrected before the sweep starts.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStart(p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.SampleName, "sample", "", "sample name (used in the data file name)")
	f.Float64Var(&p.StartVoltage, "start", 0, "first source voltage (V)")
	f.Float64Var(&p.StopVoltage, "stop", 0, "last source voltage (V)")
	f.IntVar(&p.VoltageSteps, "steps", 0, "number of sweep points")
	f.Float64Var(&p.SettleSeconds, "settle", 1, "dwell after each set point (s)")
	_ = cmd.MarkFlagRequired("sample")
	_ = cmd.MarkFlagRequired("stop")
	_ = cmd.MarkFlagRequired("steps")
	return cmd
}

func newStartDeltaRTCommand() *cobra.Command {
	p := job.Params{Kind: job.KindDeltaRT}
	cmd := &cobra.Command{
		Use:   "delta-rt",
		Short: "Delta-mode resistance vs temperature",
		Long: `Ramp the cryostat to the setpoint, wait for the temperature to stabilize,
then arm the current source in delta mode and log resistance until stopped.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStart(p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.SampleName, "sample", "", "sample name (used in the data file name)")
	f.Float64Var(&p.MaxCurrent, "current", 0, "delta source current (A)")
	f.Float64Var(&p.Compliance, "compliance", 10, "voltage compliance (V)")
	addTempFlags(cmd, &p)
	_ = cmd.MarkFlagRequired("sample")
	_ = cmd.MarkFlagRequired("current")
	return cmd
}

func newStartPyroCommand() *cobra.Command {
	p := job.Params{Kind: job.KindPyro}
	cmd := &cobra.Command{
		Use:   "pyro",
		Short: "Pyroelectric current vs temperature",
		Long: `Log electrometer current while the cryostat ramps toward the setpoint.
The job finishes on its own when the setpoint is reached.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStart(p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.SampleName, "sample", "", "sample name (used in the data file name)")
	addTempFlags(cmd, &p)
	_ = cmd.MarkFlagRequired("sample")
	return cmd
}

func newStartRampCommand() *cobra.Command {
	p := job.Params{Kind: job.KindTempRamp}
	cmd := &cobra.Command{
		Use:   "ramp",
		Short: "Temperature ramp and monitor",
		Long: `Ramp the cryostat to the setpoint and log temperature and heater output
along the way. The heater is turned off when the job ends.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStart(p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.SampleName, "sample", "", "sample name (used in the data file name)")
	addTempFlags(cmd, &p)
	_ = cmd.MarkFlagRequired("sample")
	return cmd
}

func newStartCVCommand() *cobra.Command {
	p := job.Params{Kind: job.KindCVSweep}
	cmd := &cobra.Command{
		Use:   "cv",
		Short: "C-V sweep on the LCR meter",
		Long:  `Sweep the DC bias on the LCR meter and record Cp and D at each point.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStart(p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.SampleName, "sample", "", "sample name (used in the data file name)")
	f.Float64Var(&p.StartVoltage, "start", 0, "first bias voltage (V)")
	f.Float64Var(&p.StopVoltage, "stop", 0, "last bias voltage (V)")
	f.IntVar(&p.VoltageSteps, "steps", 0, "number of sweep points")
	f.Float64Var(&p.Frequency, "frequency", 1e5, "measurement frequency (Hz)")
	f.Float64Var(&p.ACLevel, "ac-level", 0.1, "AC drive level (V rms)")
	f.Float64Var(&p.SettleSeconds, "settle", 0.5, "dwell after each bias point (s)")
	_ = cmd.MarkFlagRequired("sample")
	_ = cmd.MarkFlagRequired("stop")
	_ = cmd.MarkFlagRequired("steps")
	return cmd
}

func newStartLockinCommand() *cobra.Command {
	p := job.Params{Kind: job.KindLockinLog}
	cmd := &cobra.Command{
		Use:   "lockin",
		Short: "Log lock-in amplifier outputs",
		Long:  `Periodically snapshot the lock-in outputs (X/Y, or R/theta) until stopped.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStart(p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.SampleName, "sample", "", "sample name (used in the data file name)")
	f.BoolVar(&p.SnapRTheta, "rtheta", false, "log R/theta instead of X/Y")
	_ = cmd.MarkFlagRequired("sample")
	return cmd
}

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   "Stop the running job",
		GroupID: gBasic,
		Long: `Stop the running job. Source outputs and the heater are turned off and
the data file is closed.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.StopJob()
			if err != nil {
				return fmt.Errorf("failed to stop job: %v", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			logrus.Infof("successfully stopped the job")
			return nil
		},
	}
}

func NewPauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "pause",
		Short:   "Pause the running job",
		GroupID: gBasic,
		Long: `Pause the running job. Logging and phase advancement stop; the heater
keeps holding its setpoint.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.PauseJob()
			if err != nil {
				return fmt.Errorf("failed to pause job: %v", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			logrus.Infof("successfully paused the job")
			return nil
		},
	}
}

func NewResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "resume",
		Short:   "Resume a paused job",
		GroupID: gBasic,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.ResumeJob()
			if err != nil {
				return fmt.Errorf("failed to resume job: %v", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			logrus.Infof("successfully resumed the job")
			return nil
		},
	}
}
