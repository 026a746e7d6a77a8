package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/tapstack/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the effective settings",
	Long: `Load the configuration file named by --config, apply defaults and environment
overrides, validate it and print the result as YAML.

Examples:
  tapstack validate -c tapstack.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func runValidate(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(w, "INVALID: %v\n", err)
		return err
	}

	out, err := config.Dump(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "VALID: %s answering as %s (%s)\n", cfg.Interface.Name, cfg.Stack.IPv4, cfg.Stack.MAC)
	_, err = w.Write(out)
	return err
}
