package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codefionn/wsserial/internal/ports"
)

// portsCmd prints the serial ports the host offers.
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listPorts(cmd, ports.SerialDriver{})
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func listPorts(cmd *cobra.Command, driver ports.Driver) error {
	names, err := ports.NewRegistry(driver).ListAvailable()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintln(out, color.YellowString("No serial ports found"))
		return nil
	}
	fmt.Fprint(out, color.CyanString("Serial ports:\n"))
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}
