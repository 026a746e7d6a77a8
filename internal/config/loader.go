package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configRoot is the top-level wrapper matching the YAML structure `tapstack: ...`.
type configRoot struct {
	Tapstack GlobalConfig `mapstructure:"tapstack"`
}

// Load loads configuration from path. An empty path runs on defaults and
// environment variables alone.
// Env vars use the TAPSTACK_ prefix through the key replacer, e.g.
// key "tapstack.stack.ipv4" → env "TAPSTACK_STACK_IPV4".
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&root, hooks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Tapstack

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "tapstack." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Link defaults
	v.SetDefault("tapstack.interface.name", "tap0")
	v.SetDefault("tapstack.interface.packet_info", true)
	v.SetDefault("tapstack.interface.frame_size", 1522)

	// Stack defaults
	v.SetDefault("tapstack.stack.mac", "")
	v.SetDefault("tapstack.stack.ipv4", "")
	v.SetDefault("tapstack.stack.drop_bad_checksum", false)
	v.SetDefault("tapstack.stack.only_local_destination", false)
	v.SetDefault("tapstack.stack.preserve_reply_length", false)
	v.SetDefault("tapstack.stack.max_frames", 0)

	// ARP defaults
	v.SetDefault("tapstack.arp.merge_policy", "always")
	v.SetDefault("tapstack.arp.ttl", "0s")

	// TCP defaults
	v.SetDefault("tapstack.tcp.window", 64240)
	v.SetDefault("tapstack.tcp.isn", "fixed")
	v.SetDefault("tapstack.tcp.fixed_isn", 0x1000)
	v.SetDefault("tapstack.tcp.track", true)
	v.SetDefault("tapstack.tcp.table_ttl", "60s")

	// Filter defaults
	v.SetDefault("tapstack.filter.enabled", false)
	v.SetDefault("tapstack.filter.ether_types", []string{"arp", "ipv4"})

	// Capture defaults
	v.SetDefault("tapstack.capture.path", "")
	v.SetDefault("tapstack.capture.snap_len", 65535)

	// Metrics defaults
	v.SetDefault("tapstack.metrics.enabled", false)
	v.SetDefault("tapstack.metrics.listen", ":9091")
	v.SetDefault("tapstack.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("tapstack.log.level", "info")
	v.SetDefault("tapstack.log.pattern", "%time [%level] %field %msg")
	v.SetDefault("tapstack.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("tapstack.log.outputs.console", true)
	v.SetDefault("tapstack.log.outputs.file.enabled", false)
	v.SetDefault("tapstack.log.outputs.file.path", "/var/log/tapstack/tapstack.log")
	v.SetDefault("tapstack.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("tapstack.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("tapstack.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("tapstack.log.outputs.file.rotation.compress", true)
}

// Dump renders cfg as YAML under the `tapstack:` root key.
func Dump(cfg *GlobalConfig) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New("tapstack: nil config")
	}
	return yaml.Marshal(map[string]*GlobalConfig{"tapstack": cfg})
}
