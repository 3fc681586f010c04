package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "scan",
		Short:   "Scan the GPIB bus for instruments",
		GroupID: gAdvanced,
		Long: `Sweep every GPIB primary address with *IDN? and list the instruments that
answer. Refused while a job is running, since the sweep talks to everything on
the bus.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := apiClient.Scan()
			if err != nil {
				return fmt.Errorf("failed to scan bus: %v", err)
			}

			if len(results) == 0 {
				cmd.Println("No instruments found.")
				return nil
			}

			for _, r := range results {
				cmd.Printf("%2d  %s\n", r.Addr, r.IDN)
			}
			return nil
		},
	}
}

func NewIDNCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "idn [address]",
		Short:   "Identify the instrument at a GPIB address",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseIntArg(args, "address")
			if err != nil {
				return err
			}

			idn, err := apiClient.IDN(addr)
			if err != nil {
				return fmt.Errorf("failed to identify instrument at address %d: %v", addr, err)
			}

			cmd.Println(idn)
			return nil
		},
	}
}

func NewRawCommand() *cobra.Command {
	var query bool

	cmd := &cobra.Command{
		Use:     "raw [address] [command...]",
		Short:   "Send a raw SCPI command to an instrument",
		GroupID: gAdvanced,
		Long: `Send a raw SCPI command to the instrument at the given GPIB address.
With --query the instrument response is read back and printed.`,
		Example: `  pica raw 12 'KRDG? A' --query
  pica raw 13 'SOUR:CLE'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseIntArg(args[:1], "address")
			if err != nil {
				return err
			}
			scpi := strings.Join(args[1:], " ")

			resp, err := apiClient.Raw(addr, scpi, query)
			if err != nil {
				return fmt.Errorf("failed to send raw command: %v", err)
			}

			if query {
				cmd.Println(resp)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&query, "query", "q", false, "read a response back")

	return cmd
}

func NewReadingCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "reading",
		Short:   "Show the last logged data point",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := apiClient.GetReading()
			if err != nil {
				return fmt.Errorf("failed to get reading: %v", err)
			}

			cmd.Printf("At: %s\n", r.At)
			for i, col := range r.Columns {
				if i >= len(r.Values) {
					break
				}
				cmd.Printf("%s: %s\n", col, r.Values[i])
			}
			return nil
		},
	}
}

func NewTemperatureCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "temperature",
		Aliases: []string{"temp"},
		Short:   "Read the cryostat temperature",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := apiClient.GetTemperature()
			if err != nil {
				return fmt.Errorf("failed to read temperature: %v", err)
			}

			cmd.Printf("%.4f K\n", k)
			return nil
		},
	}
}
