// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net"
	"net/netip"
)

// MAC is a 48-bit Ethernet hardware address stored by value.
type MAC [6]byte

// BroadcastMAC is ff:ff:ff:ff:ff:ff.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// MACFrom converts a net.HardwareAddr; it fails unless the address is 6 bytes long.
func MACFrom(hw net.HardwareAddr) (MAC, error) {
	var m MAC
	if len(hw) != len(m) {
		return m, fmt.Errorf("%w: hardware address %q is not EUI-48", ErrMalformed, hw.String())
	}
	copy(m[:], hw)
	return m, nil
}

// ParseMAC parses a colon or dash separated EUI-48 address.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	return MACFrom(hw)
}

func (m MAC) HardwareAddr() net.HardwareAddr { return net.HardwareAddr(m[:]) }

func (m MAC) String() string { return m.HardwareAddr().String() }

func (m MAC) IsZero() bool { return m == MAC{} }

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using ParseMAC.
// Empty text yields the zero MAC.
func (m *MAC) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*m = MAC{}
		return nil
	}
	parsed, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// EtherType identifies the payload protocol of an Ethernet II frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeVLAN EtherType = 0x8100
	EtherTypeIPv6 EtherType = 0x86DD
)

func (e EtherType) String() string {
	switch e {
	case EtherTypeIPv4:
		return "ipv4"
	case EtherTypeARP:
		return "arp"
	case EtherTypeVLAN:
		return "vlan"
	case EtherTypeIPv6:
		return "ipv6"
	}
	return fmt.Sprintf("0x%04x", uint16(e))
}

// IPProtocol is the IPv4 protocol field.
type IPProtocol uint8

const (
	ProtocolICMP IPProtocol = 1
	ProtocolIGMP IPProtocol = 2
	ProtocolTCP  IPProtocol = 6
	ProtocolUDP  IPProtocol = 17
)

func (p IPProtocol) String() string {
	switch p {
	case ProtocolICMP:
		return "icmp"
	case ProtocolIGMP:
		return "igmp"
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	}
	return fmt.Sprintf("proto(%d)", uint8(p))
}

// Identity is the local interface's static addressing, supplied by
// configuration and passed to every component that answers on its behalf.
type Identity struct {
	MAC  MAC
	IPv4 netip.Addr
}

// Validate checks that the identity carries a non-zero MAC and an IPv4 address.
func (id Identity) Validate() error {
	if id.MAC.IsZero() {
		return fmt.Errorf("%w: local mac is unset", ErrConfigInvalid)
	}
	if !id.IPv4.Is4() {
		return fmt.Errorf("%w: local address %v is not ipv4", ErrConfigInvalid, id.IPv4)
	}
	return nil
}
