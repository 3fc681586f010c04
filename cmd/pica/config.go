package main

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Show or change daemon configuration",
		GroupID: gAdvanced,
		Long: `Show the effective daemon configuration, or change the settings that can
be adjusted at runtime. Instrument addresses and the adapter path are edited
in the config file directly; send SIGHUP to the daemon to reload it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := apiClient.GetConfig()
			if err != nil {
				return fmt.Errorf("failed to get config: %v", err)
			}

			b, err := json.MarshalIndent(conf, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(b))
			return nil
		},
	}

	cmd.AddCommand(
		newConfigPollIntervalCommand(),
		newConfigMaxSafeTempCommand(),
	)

	return cmd
}

func newConfigPollIntervalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "poll-interval [seconds]",
		Short: "Set the acquisition loop period",
		RunE: func(_ *cobra.Command, args []string) error {
			secs, err := parseIntArg(args, "poll interval")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetPollInterval(secs)
			if err != nil {
				return fmt.Errorf("failed to set poll interval: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set poll interval to %ds", secs)

			return nil
		},
	}
}

func newConfigMaxSafeTempCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "max-safe-temp [kelvin]",
		Short: "Set the temperature safety cutoff",
		Long: `Set the temperature safety cutoff. Any reading above this forces the
running job into the error state and turns the heater off.`,
		RunE: func(_ *cobra.Command, args []string) error {
			kelvin, err := parseFloatArg(args, "max safe temperature")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetMaxSafeTemp(kelvin)
			if err != nil {
				return fmt.Errorf("failed to set max safe temperature: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set max safe temperature to %g K", kelvin)

			return nil
		},
	}
}
