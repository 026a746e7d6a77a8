package stack

import (
	"firestige.xyz/tapstack/internal/config"
	"firestige.xyz/tapstack/internal/core/arp"
	"firestige.xyz/tapstack/internal/core/tcp"
	"firestige.xyz/tapstack/internal/filter"
)

// ConfigFrom maps the loaded configuration onto a dispatcher Config.
func ConfigFrom(cfg *config.GlobalConfig) (Config, error) {
	policy, err := arp.ParseMergePolicy(cfg.ARP.MergePolicy)
	if err != nil {
		return Config{}, err
	}
	isn, err := tcp.NewISNGenerator(cfg.TCP.ISN, cfg.TCP.FixedISN)
	if err != nil {
		return Config{}, err
	}

	static := make([]arp.Entry, 0, len(cfg.ARP.Static))
	for _, e := range cfg.ARP.Static {
		static = append(static, arp.Entry{IP: e.IP, MAC: e.MAC, Static: true})
	}

	return Config{
		Identity:             cfg.Stack.Identity(),
		DropBadChecksum:      cfg.Stack.DropBadChecksum,
		OnlyLocalDestination: cfg.Stack.OnlyLocalDestination,
		PreserveReplyLength:  cfg.Stack.PreserveReplyLength,
		MergePolicy:          policy,
		ARPTTL:               cfg.ARP.TTL,
		Static:               static,
		Window:               cfg.TCP.Window,
		ISN:                  isn,
		TrackHandshakes:      cfg.TCP.Track,
		HandshakeTTL:         cfg.TCP.TableTTL,
	}, nil
}

// FiltersFrom builds the ingress filters; none when filtering is off.
func FiltersFrom(cfg config.FilterConfig) ([]filter.Filter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	types, err := filter.ParseEtherTypes(cfg.EtherTypes)
	if err != nil {
		return nil, err
	}
	f, err := filter.NewEtherTypeFilter(types...)
	if err != nil {
		return nil, err
	}
	return []filter.Filter{f}, nil
}
