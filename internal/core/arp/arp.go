// Package arp implements the address resolution cache and an RFC 826
// responder for IPv4 over Ethernet.
package arp

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"firestige.xyz/tapstack/internal/core"
)

const (
	// MessageLen is the size of an IPv4-over-Ethernet ARP message.
	MessageLen = 28

	HardwareEthernet = 0x0001
	ProtocolIPv4     = 0x0800
)

// Opcode is the ARP operation.
type Opcode uint16

const (
	OpRequest     Opcode = 1
	OpReply       Opcode = 2
	OpRARPRequest Opcode = 3
	OpRARPReply   Opcode = 4
)

func (o Opcode) String() string {
	switch o {
	case OpRequest:
		return "request"
	case OpReply:
		return "reply"
	case OpRARPRequest:
		return "rarp-request"
	case OpRARPReply:
		return "rarp-reply"
	}
	return fmt.Sprintf("opcode(%d)", uint16(o))
}

// Message is an ARP packet carrying Ethernet and IPv4 addresses.
type Message struct {
	HardwareType uint16
	ProtoType    uint16
	HardwareSize uint8
	ProtoSize    uint8
	Opcode       Opcode
	SenderMAC    core.MAC
	SenderIP     netip.Addr
	TargetMAC    core.MAC
	TargetIP     netip.Addr
}

// Decode parses an ARP message. Inputs shorter than MessageLen are rejected,
// as are messages whose address sizes are not those of Ethernet and IPv4.
func Decode(v core.View) (Message, error) {
	if err := v.Need(MessageLen); err != nil {
		return Message{}, fmt.Errorf("arp message: %w", err)
	}

	var m Message
	m.HardwareType, _ = v.Uint16(0)
	m.ProtoType, _ = v.Uint16(2)
	m.HardwareSize, _ = v.Uint8(4)
	m.ProtoSize, _ = v.Uint8(5)
	op, _ := v.Uint16(6)
	m.Opcode = Opcode(op)

	if m.HardwareSize != 6 || m.ProtoSize != 4 {
		return m, fmt.Errorf("arp address sizes %d/%d: %w", m.HardwareSize, m.ProtoSize, core.ErrMalformed)
	}

	m.SenderMAC, _ = v.MAC(8)
	m.SenderIP, _ = v.Addr4(14)
	m.TargetMAC, _ = v.MAC(18)
	m.TargetIP, _ = v.Addr4(24)
	return m, nil
}

// Put encodes m into the first MessageLen bytes of buf.
func (m Message) Put(buf []byte) error {
	if len(buf) < MessageLen {
		return fmt.Errorf("arp message: %w", core.ErrBufferTooSmall)
	}
	binary.BigEndian.PutUint16(buf[0:2], m.HardwareType)
	binary.BigEndian.PutUint16(buf[2:4], m.ProtoType)
	buf[4] = m.HardwareSize
	buf[5] = m.ProtoSize
	binary.BigEndian.PutUint16(buf[6:8], uint16(m.Opcode))
	copy(buf[8:14], m.SenderMAC[:])
	putAddr4(buf[14:18], m.SenderIP)
	copy(buf[18:24], m.TargetMAC[:])
	putAddr4(buf[24:28], m.TargetIP)
	return nil
}

// IsEthernetIPv4 reports whether the message resolves IPv4 over Ethernet.
func (m Message) IsEthernetIPv4() bool {
	return m.HardwareType == HardwareEthernet && m.ProtoType == ProtocolIPv4
}

func (m Message) String() string {
	return fmt.Sprintf("%s who-has %s tell %s (%s)", m.Opcode, m.TargetIP, m.SenderIP, m.SenderMAC)
}

func putAddr4(dst []byte, a netip.Addr) {
	if a.Is4() {
		b := a.As4()
		copy(dst, b[:])
		return
	}
	clear(dst[:4])
}
