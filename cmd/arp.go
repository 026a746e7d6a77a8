package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/tapstack/internal/config"
	"firestige.xyz/tapstack/internal/log"
	"firestige.xyz/tapstack/internal/stack"
)

var arpCmd = &cobra.Command{
	Use:   "arp",
	Short: "Print the ARP cache the stack starts with",
	Long: `Print the bindings the stack holds right after start: the local address,
loopback and the entries from arp.static.

Examples:
  tapstack arp -c tapstack.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runARP(cfg, cmd.OutOrStdout())
	},
}

func runARP(cfg *config.GlobalConfig, w io.Writer) error {
	sc, err := stack.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	disp, err := stack.NewDispatcher(sc, log.GetLogger())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tHWADDRESS\tTYPE")
	for _, e := range disp.Cache().Entries() {
		kind := "dynamic"
		switch {
		case e.IP == sc.Identity.IPv4:
			kind = "local"
		case e.Static:
			kind = "static"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.IP, e.MAC, kind)
	}
	return tw.Flush()
}
