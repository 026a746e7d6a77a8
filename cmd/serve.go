package cmd

import (
	"context"
	"fmt"
	"time"

	"firestige.xyz/tapstack/internal/capture"
	"firestige.xyz/tapstack/internal/config"
	"firestige.xyz/tapstack/internal/link"
	"firestige.xyz/tapstack/internal/log"
	"firestige.xyz/tapstack/internal/metrics"
	"firestige.xyz/tapstack/internal/stack"
)

const shutdownTimeout = 5 * time.Second

// serve wires cfg around dev and runs the frame loop until ctx is done or
// the device runs dry. dev is closed on return.
func serve(ctx context.Context, cfg *config.GlobalConfig, dev link.Device, name string) (stack.StatsSnapshot, error) {
	defer dev.Close()

	sc, err := stack.ConfigFrom(cfg)
	if err != nil {
		return stack.StatsSnapshot{}, err
	}
	disp, err := stack.NewDispatcher(sc, log.GetLogger())
	if err != nil {
		return stack.StatsSnapshot{}, err
	}
	filters, err := stack.FiltersFrom(cfg.Filter)
	if err != nil {
		return stack.StatsSnapshot{}, err
	}

	opts := []stack.Option{
		stack.WithFilters(filters...),
		stack.WithMaxFrames(cfg.Stack.MaxFrames),
		stack.WithFrameSize(cfg.Interface.FrameSize),
	}

	if cfg.Capture.Path != "" {
		w, err := capture.Create(cfg.Capture.Path, cfg.Capture.SnapLen)
		if err != nil {
			return stack.StatsSnapshot{}, err
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.GetLogger().WithError(err).Warn("close capture file")
			}
		}()
		opts = append(opts, stack.WithCapture(w))
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return stack.StatsSnapshot{}, err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				log.GetLogger().WithError(err).Warn("stop metrics server")
			}
		}()
	}

	log.GetLogger().WithField("interface", name).
		WithField("mac", sc.Identity.MAC).
		WithField("ipv4", sc.Identity.IPv4).
		Info("tapstack starting")

	r := stack.NewRunner(dev, disp, name, opts...)
	if err := r.Run(ctx); err != nil {
		return r.Stats().Snapshot(), fmt.Errorf("run %s: %w", name, err)
	}
	return r.Stats().Snapshot(), nil
}
