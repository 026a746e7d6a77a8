package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/tapstack/internal/config"
	"firestige.xyz/tapstack/internal/link"
	"firestige.xyz/tapstack/internal/log"
)

var (
	replayIn  string
	replayOut string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Feed a pcap file through the stack",
	Long: `
Read Ethernet frames from a pcap file as if they arrived on the interface and
write every reply to another pcap file.

Examples:
  tapstack replay -i requests.pcap -o replies.pcap
  tapstack replay -c tapstack.yml -i requests.pcap
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
		return runReplay(ctx, cfg, replayIn, replayOut, cmd.OutOrStdout())
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayIn, "in", "i", "", "pcap file to replay (required)")
	replayCmd.Flags().StringVarP(&replayOut, "out", "o", "", "pcap file receiving the replies")
	_ = replayCmd.MarkFlagRequired("in")
}

func runReplay(ctx context.Context, cfg *config.GlobalConfig, in, out string, w io.Writer) error {
	dev, err := link.OpenPcapFile(in, out)
	if err != nil {
		return err
	}
	snap, err := serve(ctx, cfg, dev, "replay")
	if err != nil {
		return err
	}

	var dropped uint64
	for _, n := range snap.Dropped {
		dropped += n
	}
	fmt.Fprintf(w, "replayed %d frame(s): %d reply(ies), %d dropped\n", snap.Received, snap.Sent, dropped)
	return nil
}
