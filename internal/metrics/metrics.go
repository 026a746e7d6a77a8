// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesReceivedTotal counts frames read from the device
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapstack_frames_received_total",
			Help: "Total number of frames read from the link device",
		},
		[]string{"interface"},
	)

	// FramesAcceptedTotal counts frames that passed the ingress filters
	FramesAcceptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapstack_frames_accepted_total",
			Help: "Total number of frames that passed the ingress filters",
		},
		[]string{"interface"},
	)

	// FramesSentTotal counts reply frames written to the device
	FramesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapstack_frames_sent_total",
			Help: "Total number of reply frames written to the link device",
		},
		[]string{"interface", "protocol"},
	)

	// FramesDroppedTotal counts frames that produced no reply, by reason
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapstack_frames_dropped_total",
			Help: "Total number of frames dropped without a reply",
		},
		[]string{"interface", "reason"},
	)

	// ChecksumErrorsTotal counts inbound checksum mismatches, dropped or not
	ChecksumErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapstack_checksum_errors_total",
			Help: "Total number of inbound headers whose checksum did not verify",
		},
		[]string{"protocol"},
	)

	// ARPCacheUpdatesTotal counts cache merges by outcome
	ARPCacheUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapstack_arp_cache_updates_total",
			Help: "Total number of ARP cache merges",
		},
		[]string{"result"},
	)

	// ARPCacheEntries tracks live bindings in the resolution cache
	ARPCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapstack_arp_cache_entries",
			Help: "Current number of live ARP cache bindings",
		},
	)

	// TCPHandshakeAttempts tracks SYNs remembered by the handshake table
	TCPHandshakeAttempts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapstack_tcp_handshake_attempts",
			Help: "Current number of answered SYNs held in the handshake table",
		},
	)

	// ProcessLatencySeconds measures per-frame dispatch latency
	ProcessLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tapstack_process_latency_seconds",
			Help:    "Latency of processing one frame in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0000005, 2, 16), // 0.5µs to ~16ms
		},
	)
)

// Drop reasons used as the reason label of FramesDroppedTotal.
const (
	DropMalformed   = "malformed"
	DropUnsupported = "unsupported"
	DropChecksum    = "checksum"
	DropFiltered    = "filtered"
	DropNotLocal    = "not_local"
	DropNotUnicast  = "not_unicast"
	DropNoReply     = "no_reply"
	DropBuffer      = "buffer"
	DropSendError   = "send_error"
)
