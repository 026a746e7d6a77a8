// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"firestige.xyz/tapstack/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `tapstack:` root key in YAML.
type GlobalConfig struct {
	Interface InterfaceConfig `mapstructure:"interface" yaml:"interface"`
	Stack     StackConfig     `mapstructure:"stack" yaml:"stack"`
	ARP       ARPConfig       `mapstructure:"arp" yaml:"arp"`
	TCP       TCPConfig       `mapstructure:"tcp" yaml:"tcp"`
	Filter    FilterConfig    `mapstructure:"filter" yaml:"filter"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// ─── Link ───

// InterfaceConfig selects the TAP device the stack is attached to.
type InterfaceConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// PacketInfo keeps the 4-byte packet information preamble the kernel
	// puts in front of every frame (IFF_NO_PI unset).
	PacketInfo bool `mapstructure:"packet_info" yaml:"packet_info"`
	FrameSize  int  `mapstructure:"frame_size" yaml:"frame_size"` // largest Ethernet frame, preamble excluded
}

// ─── Stack ───

// StackConfig holds the local identity and dispatch policy.
type StackConfig struct {
	MAC  core.MAC   `mapstructure:"mac" yaml:"mac"`
	IPv4 netip.Addr `mapstructure:"ipv4" yaml:"ipv4"`

	DropBadChecksum      bool `mapstructure:"drop_bad_checksum" yaml:"drop_bad_checksum"`
	OnlyLocalDestination bool `mapstructure:"only_local_destination" yaml:"only_local_destination"`
	// PreserveReplyLength keeps the inbound IPv4 total length in replies
	// even when the reply payload is a different size.
	PreserveReplyLength bool   `mapstructure:"preserve_reply_length" yaml:"preserve_reply_length"`
	MaxFrames           uint64 `mapstructure:"max_frames" yaml:"max_frames"` // 0 = unlimited
}

// Identity returns the local addressing as passed to the dispatcher.
func (s StackConfig) Identity() core.Identity {
	return core.Identity{MAC: s.MAC, IPv4: s.IPv4}
}

// ─── ARP ───

// ARPConfig configures the resolution cache.
type ARPConfig struct {
	MergePolicy string        `mapstructure:"merge_policy" yaml:"merge_policy"` // always | rfc826
	TTL         time.Duration `mapstructure:"ttl" yaml:"ttl"`                   // 0 = never expire
	Static      []StaticEntry `mapstructure:"static" yaml:"static"`
}

// StaticEntry is a permanent cache binding.
type StaticEntry struct {
	IP  netip.Addr `mapstructure:"ip" yaml:"ip"`
	MAC core.MAC   `mapstructure:"mac" yaml:"mac"`
}

// ─── TCP ───

// TCPConfig configures the handshake handler.
type TCPConfig struct {
	Window   uint16        `mapstructure:"window" yaml:"window"`
	ISN      string        `mapstructure:"isn" yaml:"isn"` // fixed | random
	FixedISN uint32        `mapstructure:"fixed_isn" yaml:"fixed_isn"`
	Track    bool          `mapstructure:"track" yaml:"track"` // keep the handshake table
	TableTTL time.Duration `mapstructure:"table_ttl" yaml:"table_ttl"`
}

// ─── Ingress filter ───

// FilterConfig restricts which frames reach the dispatcher.
type FilterConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// EtherTypes lists accepted ether-types by name (arp, ipv4, ipv6, vlan)
	// or number (0x0806).
	EtherTypes []string `mapstructure:"ether_types" yaml:"ether_types"`
}

// ─── Capture ───

// CaptureConfig enables writing every received and sent frame to a pcap file.
type CaptureConfig struct {
	Path    string `mapstructure:"path" yaml:"path"` // empty = disabled
	SnapLen uint32 `mapstructure:"snap_len" yaml:"snap_len"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`     // trace / debug / info / warn / error
	Pattern string           `mapstructure:"pattern" yaml:"pattern"` // %time %level %field %msg %caller
	Time    string           `mapstructure:"time" yaml:"time"`       // Go time layout
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig lists log destinations.
type LogOutputsConfig struct {
	Console bool             `mapstructure:"console" yaml:"console"`
	File    FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ValidateAndApplyDefaults validates configuration and fills in runtime defaults.
// Every failure wraps core.ErrConfigInvalid.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("log level %q (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── Identity ──
	if err := cfg.Stack.Identity().Validate(); err != nil {
		return fmt.Errorf("stack: %w", err)
	}

	// ── Link ──
	if cfg.Interface.Name == "" {
		return invalid("interface.name is required")
	}
	if cfg.Interface.FrameSize < 60 || cfg.Interface.FrameSize > 65535 {
		return invalid("interface.frame_size %d out of range 60..65535", cfg.Interface.FrameSize)
	}

	// ── ARP ──
	cfg.ARP.MergePolicy = strings.ToLower(cfg.ARP.MergePolicy)
	if cfg.ARP.MergePolicy != "always" && cfg.ARP.MergePolicy != "rfc826" {
		return invalid("arp.merge_policy %q (must be always/rfc826)", cfg.ARP.MergePolicy)
	}
	if cfg.ARP.TTL < 0 {
		return invalid("arp.ttl must not be negative")
	}
	for i, e := range cfg.ARP.Static {
		if !e.IP.Is4() || e.MAC.IsZero() {
			return invalid("arp.static[%d] needs an ipv4 address and a mac", i)
		}
	}

	// ── TCP ──
	cfg.TCP.ISN = strings.ToLower(cfg.TCP.ISN)
	if cfg.TCP.ISN != "fixed" && cfg.TCP.ISN != "random" {
		return invalid("tcp.isn %q (must be fixed/random)", cfg.TCP.ISN)
	}

	// ── Filter ──
	if cfg.Filter.Enabled && len(cfg.Filter.EtherTypes) == 0 {
		return invalid("filter.ether_types is empty; the filter would drop every frame")
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics are enabled")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Capture.SnapLen == 0 {
		cfg.Capture.SnapLen = 65535
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), core.ErrConfigInvalid)
}
