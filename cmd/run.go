package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/tapstack/internal/link"
	"firestige.xyz/tapstack/internal/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Answer traffic on the configured TAP interface",
	Long: `
Open the TAP interface named in the configuration and answer ARP, ICMP echo and
TCP SYN until interrupted.

Examples:
  tapstack run                           # defaults plus TAPSTACK_* environment
  tapstack run -c tapstack.yml           # configuration file
  TAPSTACK_STACK_IPV4=10.0.0.2 TAPSTACK_STACK_MAC=be:e9:7d:63:31:bc tapstack run
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := log.Init(cfg.Log); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dev, err := link.OpenTAP(cfg.Interface.Name, cfg.Interface.PacketInfo, cfg.Interface.FrameSize)
		if err != nil {
			return err
		}
		_, err = serve(ctx, cfg, dev, dev.Name())
		return err
	},
}
