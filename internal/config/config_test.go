package config

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"firestige.xyz/tapstack/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
tapstack:
  interface:
    name: "tap7"
    packet_info: false
    frame_size: 9018
  stack:
    mac: "be:e9:7d:63:31:bc"
    ipv4: "10.0.0.2"
    drop_bad_checksum: true
    max_frames: 10000
  arp:
    merge_policy: "RFC826"
    ttl: "5m"
    static:
      - ip: "10.0.0.254"
        mac: "02:00:00:00:00:fe"
  tcp:
    window: 1024
    isn: "random"
  filter:
    enabled: true
    ether_types: ["arp", "0x0800"]
  capture:
    path: "/tmp/tapstack.pcap"
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
  log:
    level: "DEBUG"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Interface.Name != "tap7" || cfg.Interface.PacketInfo || cfg.Interface.FrameSize != 9018 {
		t.Errorf("Unexpected interface config: %+v", cfg.Interface)
	}
	wantMAC := core.MAC{0xbe, 0xe9, 0x7d, 0x63, 0x31, 0xbc}
	if cfg.Stack.MAC != wantMAC {
		t.Errorf("Expected MAC %s, got %s", wantMAC, cfg.Stack.MAC)
	}
	if cfg.Stack.IPv4 != netip.MustParseAddr("10.0.0.2") {
		t.Errorf("Expected IPv4 10.0.0.2, got %s", cfg.Stack.IPv4)
	}
	if !cfg.Stack.DropBadChecksum || cfg.Stack.MaxFrames != 10000 {
		t.Errorf("Unexpected stack config: %+v", cfg.Stack)
	}
	if cfg.ARP.MergePolicy != "rfc826" {
		t.Errorf("Expected merge policy to be lower-cased, got %s", cfg.ARP.MergePolicy)
	}
	if cfg.ARP.TTL != 5*time.Minute {
		t.Errorf("Expected ARP TTL 5m, got %v", cfg.ARP.TTL)
	}
	if len(cfg.ARP.Static) != 1 || cfg.ARP.Static[0].IP != netip.MustParseAddr("10.0.0.254") ||
		cfg.ARP.Static[0].MAC != (core.MAC{2, 0, 0, 0, 0, 0xfe}) {
		t.Errorf("Unexpected static entries: %+v", cfg.ARP.Static)
	}
	if cfg.TCP.Window != 1024 || cfg.TCP.ISN != "random" {
		t.Errorf("Unexpected tcp config: %+v", cfg.TCP)
	}
	if !cfg.Filter.Enabled || len(cfg.Filter.EtherTypes) != 2 || cfg.Filter.EtherTypes[1] != "0x0800" {
		t.Errorf("Unexpected filter config: %+v", cfg.Filter)
	}
	if cfg.Capture.Path != "/tmp/tapstack.pcap" || cfg.Capture.SnapLen != 65535 {
		t.Errorf("Unexpected capture config: %+v", cfg.Capture)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9100" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Unexpected metrics config: %+v", cfg.Metrics)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
tapstack:
  stack:
    mac: "02:00:00:00:00:02"
    ipv4: "10.0.0.2"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Interface.Name != "tap0" || !cfg.Interface.PacketInfo || cfg.Interface.FrameSize != 1522 {
		t.Errorf("Unexpected interface defaults: %+v", cfg.Interface)
	}
	if cfg.ARP.MergePolicy != "always" || cfg.ARP.TTL != 0 {
		t.Errorf("Unexpected ARP defaults: %+v", cfg.ARP)
	}
	if cfg.TCP.ISN != "fixed" || cfg.TCP.FixedISN != 0x1000 || cfg.TCP.Window != 64240 {
		t.Errorf("Unexpected TCP defaults: %+v", cfg.TCP)
	}
	if !cfg.TCP.Track || cfg.TCP.TableTTL != time.Minute {
		t.Errorf("Unexpected TCP table defaults: %+v", cfg.TCP)
	}
	if cfg.Stack.OnlyLocalDestination || cfg.Stack.DropBadChecksum || cfg.Stack.MaxFrames != 0 {
		t.Errorf("Unexpected stack defaults: %+v", cfg.Stack)
	}
	if cfg.Filter.Enabled {
		t.Error("Expected filter disabled by default")
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Log.Level != "info" || !cfg.Log.Outputs.Console || cfg.Log.Outputs.File.Enabled {
		t.Errorf("Unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TAPSTACK_STACK_MAC", "02:00:00:00:00:09")
	t.Setenv("TAPSTACK_STACK_IPV4", "192.168.7.1")
	t.Setenv("TAPSTACK_ARP_TTL", "30s")
	t.Setenv("TAPSTACK_FILTER_ETHER_TYPES", "arp,ipv4,ipv6")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Stack.IPv4 != netip.MustParseAddr("192.168.7.1") {
		t.Errorf("Expected env IPv4, got %s", cfg.Stack.IPv4)
	}
	if cfg.Stack.MAC != (core.MAC{2, 0, 0, 0, 0, 9}) {
		t.Errorf("Expected env MAC, got %s", cfg.Stack.MAC)
	}
	if cfg.ARP.TTL != 30*time.Second {
		t.Errorf("Expected env TTL 30s, got %v", cfg.ARP.TTL)
	}
	if len(cfg.Filter.EtherTypes) != 3 {
		t.Errorf("Expected 3 ether types from env, got %v", cfg.Filter.EtherTypes)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing identity", `
tapstack:
  log:
    level: info
`},
		{"log level", `
tapstack:
  stack: {mac: "02:00:00:00:00:02", ipv4: "10.0.0.2"}
  log: {level: "verbose"}
`},
		{"merge policy", `
tapstack:
  stack: {mac: "02:00:00:00:00:02", ipv4: "10.0.0.2"}
  arp: {merge_policy: "never"}
`},
		{"isn mode", `
tapstack:
  stack: {mac: "02:00:00:00:00:02", ipv4: "10.0.0.2"}
  tcp: {isn: "clock"}
`},
		{"ipv6 identity", `
tapstack:
  stack: {mac: "02:00:00:00:00:02", ipv4: "fe80::1"}
`},
		{"empty filter", `
tapstack:
  stack: {mac: "02:00:00:00:00:02", ipv4: "10.0.0.2"}
  filter: {enabled: true, ether_types: []}
`},
		{"static without mac", `
tapstack:
  stack: {mac: "02:00:00:00:00:02", ipv4: "10.0.0.2"}
  arp:
    static:
      - ip: "10.0.0.9"
`},
		{"frame size", `
tapstack:
  stack: {mac: "02:00:00:00:00:02", ipv4: "10.0.0.2"}
  interface: {frame_size: 20}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoadMalformedMAC(t *testing.T) {
	path := writeConfig(t, `
tapstack:
  stack: {mac: "not-a-mac", ipv4: "10.0.0.2"}
`)
	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed MAC, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestDumpRoundTrip(t *testing.T) {
	path := writeConfig(t, `
tapstack:
  stack: {mac: "02:00:00:00:00:02", ipv4: "10.0.0.2"}
  arp:
    ttl: "90s"
    static:
      - {ip: "10.0.0.1", mac: "02:00:00:00:00:01"}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	out, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	again, err := Load(writeConfig(t, string(out)))
	if err != nil {
		t.Fatalf("Failed to reload dumped config: %v\n%s", err, out)
	}
	if again.Stack != cfg.Stack {
		t.Errorf("Stack differs after round trip: %+v vs %+v", again.Stack, cfg.Stack)
	}
	if again.ARP.TTL != 90*time.Second || len(again.ARP.Static) != 1 {
		t.Errorf("ARP differs after round trip: %+v", again.ARP)
	}
}
