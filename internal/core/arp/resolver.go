package arp

import (
	"fmt"
	"net/netip"

	"firestige.xyz/tapstack/internal/core"
)

// MergePolicy decides when a received ARP packet updates the cache.
type MergePolicy string

const (
	// MergeAlways records the sender binding of every ARP packet.
	MergeAlways MergePolicy = "always"
	// MergeRFC826 refreshes known bindings from any packet but only learns
	// new ones from packets addressed to the local interface.
	MergeRFC826 MergePolicy = "rfc826"
)

// ParseMergePolicy maps a configuration string to a MergePolicy.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(s) {
	case MergeAlways, "":
		return MergeAlways, nil
	case MergeRFC826:
		return MergeRFC826, nil
	}
	return "", fmt.Errorf("%w: unknown arp merge policy %q", core.ErrConfigInvalid, s)
}

// Result is what the resolver did with one ARP packet.
type Result struct {
	Message Message
	// Merged is set when the sender binding was written to the cache;
	// Merge then tells whether it was new, replaced or already known.
	Merged bool
	Merge  UpdateResult
	// Reply holds the ARP message to send back, nil when there is none.
	Reply []byte
}

// Resolver answers ARP requests for the local identity and learns bindings
// from the traffic it sees.
type Resolver struct {
	cache  *Cache
	local  core.Identity
	policy MergePolicy
}

// NewResolver creates a resolver writing into cache. The local identity and
// a loopback binding are seeded as static entries.
func NewResolver(cache *Cache, local core.Identity, policy MergePolicy) *Resolver {
	cache.AddStatic(local.IPv4, local.MAC)
	cache.AddStatic(netip.AddrFrom4([4]byte{127, 0, 0, 1}), core.MAC{})
	if policy == "" {
		policy = MergeAlways
	}
	return &Resolver{cache: cache, local: local, policy: policy}
}

// Cache returns the cache the resolver writes into.
func (r *Resolver) Cache() *Cache { return r.cache }

// Handle processes one ARP message. Requests for the local address produce a
// reply; replies only update the cache. RARP and unknown opcodes return
// core.ErrUnsupported after the merge has been applied.
func (r *Resolver) Handle(v core.View) (Result, error) {
	m, err := Decode(v)
	if err != nil {
		return Result{}, err
	}
	if !m.IsEthernetIPv4() {
		return Result{Message: m}, fmt.Errorf("arp hardware 0x%04x protocol 0x%04x: %w",
			m.HardwareType, m.ProtoType, core.ErrUnsupported)
	}

	res := Result{Message: m}
	if r.shouldMerge(m) {
		res.Merged = true
		res.Merge = r.cache.Update(m.SenderIP, m.SenderMAC)
	}

	switch m.Opcode {
	case OpRequest:
		if m.TargetIP == r.local.IPv4 {
			res.Reply = r.buildReply(m)
		}
		return res, nil
	case OpReply:
		return res, nil
	default:
		return res, fmt.Errorf("arp %s: %w", m.Opcode, core.ErrUnsupported)
	}
}

func (r *Resolver) shouldMerge(m Message) bool {
	if r.policy == MergeAlways {
		return true
	}
	return r.cache.Contains(m.SenderIP) || m.TargetIP == r.local.IPv4
}

// buildReply answers req on behalf of the local identity.
func (r *Resolver) buildReply(req Message) []byte {
	reply := Message{
		HardwareType: req.HardwareType,
		ProtoType:    req.ProtoType,
		HardwareSize: req.HardwareSize,
		ProtoSize:    req.ProtoSize,
		Opcode:       OpReply,
		SenderMAC:    r.local.MAC,
		SenderIP:     r.local.IPv4,
		TargetMAC:    req.SenderMAC,
		TargetIP:     req.SenderIP,
	}
	buf := make([]byte, MessageLen)
	_ = reply.Put(buf)
	return buf
}
