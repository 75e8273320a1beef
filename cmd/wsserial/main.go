package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	address    string
	httpPort   int
	wsPort     int
	logLevel   string
	logPath    string
	pidPath    string
	loopback   []string
)

// rootCmd runs the bridge when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "wsserial",
	Short: "Share host serial ports with browsers over WebSocket",
	Long: `wsserial bridges the host's serial ports to browser clients.

Clients connect over WebSocket, open ports, take the write lock and receive
everything the ports send. A landing page and a status endpoint are served
on the HTTP port.

Use 'wsserial ports' to see which serial ports the host offers.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", "", "Configuration file (YAML or JSON)")

	rootCmd.Flags().StringVarP(&address, "address", "a", "", "Address to bind both listeners to")
	rootCmd.Flags().IntVarP(&httpPort, "http-port", "p", 0, "Port of the landing page and status endpoint")
	rootCmd.Flags().IntVarP(&wsPort, "ws-port", "w", 0, "Port of the WebSocket endpoint")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, none)")
	rootCmd.Flags().StringVar(&logPath, "log-path", "", "Log file, stderr when empty")
	rootCmd.Flags().StringVar(&pidPath, "pid-file", "", "Refuse to start while another instance holds this PID file")
	rootCmd.Flags().StringSliceVar(&loopback, "loopback", nil, "Serve in-memory echo ports with these names instead of hardware")
}
