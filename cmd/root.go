// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/tapstack/internal/config"
)

// version is overridden at build time with -ldflags "-X firestige.xyz/tapstack/cmd.version=...".
var version = "0.1.0"

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tapstack",
	Short: "tapstack - a user-space responder for ARP, ICMP echo and TCP SYN on a TAP device",
	Long: `tapstack attaches to a TAP interface and answers the traffic the kernel hands it
without a kernel network stack behind the interface.

It replies to:
  - ARP requests for the configured IPv4 address
  - ICMP echo requests
  - TCP SYN segments, with a SYN-ACK

Frames can also be replayed from a pcap file and the replies written to another.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and TAPSTACK_* environment when empty)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(arpCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.GlobalConfig, error) {
	return config.Load(configFile)
}
