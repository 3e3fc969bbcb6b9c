// Shellies discovers Shelly Gen2+ devices and keeps a live registry of them.
//
// Devices are found through mDNS, a static list in the configuration file, or
// by connecting to the built-in outbound WebSocket server. Lifecycle events
// are printed to the console and can be mirrored to an MQTT broker.
//
// Usage:
//
//	shellies run [flags]
//	shellies discover [flags]
//
// See 'shellies --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Xatter/shellies-ng/internal/logging"
	"github.com/Xatter/shellies-ng/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "shellies",
	Short: "Shelly device discovery and registry",
	Long: `Discover Shelly Gen2+ devices on the local network and keep a registry of them.

Devices are identified over mDNS, from the static list in the configuration
file, or when they connect to the outbound WebSocket server. Each device is
connected through JSON-RPC over WebSocket and reported as added, removed,
excluded, unknown or failed.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: OS config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "shellies %s\n", version.Full())
	},
}
