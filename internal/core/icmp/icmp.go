// Package icmp decodes ICMPv4 messages and answers echo requests.
package icmp

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/core/checksum"
)

// HeaderLen covers type, code, checksum and the 4-byte rest of header.
const HeaderLen = 8

// Type is the ICMP message type.
type Type uint8

const (
	TypeEchoReply              Type = 0
	TypeDestinationUnreachable Type = 3
	TypeSourceQuench           Type = 4
	TypeRedirect               Type = 5
	TypeEchoRequest            Type = 8
	TypeRouterAdvertisement    Type = 9
	TypeRouterSolicitation     Type = 10
	TypeTimeExceeded           Type = 11
	TypeParameterProblem       Type = 12
)

var typeNames = map[Type]string{
	TypeEchoReply:              "echo-reply",
	TypeDestinationUnreachable: "destination-unreachable",
	TypeSourceQuench:           "source-quench",
	TypeRedirect:               "redirect",
	TypeEchoRequest:            "echo-request",
	TypeRouterAdvertisement:    "router-advertisement",
	TypeRouterSolicitation:     "router-solicitation",
	TypeTimeExceeded:           "time-exceeded",
	TypeParameterProblem:       "parameter-problem",
}

// Known reports whether t is one of the types this package names.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Message is a decoded ICMP message. Payload aliases the decoded buffer.
type Message struct {
	Type         Type
	Code         uint8
	Checksum     uint16
	RestOfHeader [4]byte
	Payload      []byte
}

// Decode parses the ICMP message spanning the whole of v.
func Decode(v core.View) (Message, error) {
	if err := v.Need(HeaderLen); err != nil {
		return Message{}, fmt.Errorf("icmp header: %w", err)
	}

	var m Message
	t, _ := v.Uint8(0)
	m.Type = Type(t)
	m.Code, _ = v.Uint8(1)
	m.Checksum, _ = v.Uint16(2)
	_ = v.CopyTo(m.RestOfHeader[:], 4, 4)
	payload, _ := v.Tail(HeaderLen)
	m.Payload = payload.Bytes()
	return m, nil
}

// Identifier is the echo identifier carried in the rest of header.
func (m Message) Identifier() uint16 { return binary.BigEndian.Uint16(m.RestOfHeader[0:2]) }

// Sequence is the echo sequence number carried in the rest of header.
func (m Message) Sequence() uint16 { return binary.BigEndian.Uint16(m.RestOfHeader[2:4]) }

// Len is the encoded size of m.
func (m Message) Len() int { return HeaderLen + len(m.Payload) }

// Put encodes m into buf with a freshly computed checksum and returns the
// number of bytes written.
func (m Message) Put(buf []byte) (int, error) {
	n := m.Len()
	if len(buf) < n {
		return 0, fmt.Errorf("icmp message: %w", core.ErrBufferTooSmall)
	}
	buf[0] = byte(m.Type)
	buf[1] = m.Code
	buf[2], buf[3] = 0, 0
	copy(buf[4:8], m.RestOfHeader[:])
	copy(buf[HeaderLen:n], m.Payload)
	binary.BigEndian.PutUint16(buf[2:4], checksum.Sum(buf[:n]))
	return n, nil
}

// ChecksumValid reports whether the raw message in v carries a correct checksum.
func ChecksumValid(v core.View) bool {
	return checksum.Sum(v.Bytes()) == 0
}
