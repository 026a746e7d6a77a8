// Package ethernet implements the Ethernet II header codec.
package ethernet

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/tapstack/internal/core"
)

// HeaderLen is the size of an untagged Ethernet II header.
const HeaderLen = 14

// Header represents the L2 Ethernet frame header.
type Header struct {
	DstMAC    core.MAC
	SrcMAC    core.MAC
	EtherType core.EtherType
}

// Decode reads the header from the first 14 bytes of v.
func Decode(v core.View) (Header, error) {
	if err := v.Need(HeaderLen); err != nil {
		return Header{}, fmt.Errorf("ethernet header: %w", err)
	}

	var h Header
	// Destination MAC (6 bytes at offset 0)
	h.DstMAC, _ = v.MAC(0)
	// Source MAC (6 bytes at offset 6)
	h.SrcMAC, _ = v.MAC(6)
	// EtherType (2 bytes at offset 12)
	et, _ := v.Uint16(12)
	h.EtherType = core.EtherType(et)
	return h, nil
}

// Put encodes h into the first 14 bytes of buf.
func (h Header) Put(buf []byte) error {
	if len(buf) < HeaderLen {
		return fmt.Errorf("ethernet header: %w", core.ErrBufferTooSmall)
	}
	copy(buf[0:6], h.DstMAC[:])
	copy(buf[6:12], h.SrcMAC[:])
	binary.BigEndian.PutUint16(buf[12:14], uint16(h.EtherType))
	return nil
}

// Reply returns the header of a frame answering h: it is addressed to the
// original sender, sourced from local, and keeps the EtherType.
func (h Header) Reply(local core.MAC) Header {
	return Header{
		DstMAC:    h.SrcMAC,
		SrcMAC:    local,
		EtherType: h.EtherType,
	}
}

// BuildReply encodes the reply header for h.
func BuildReply(h Header, local core.MAC) [HeaderLen]byte {
	var out [HeaderLen]byte
	_ = h.Reply(local).Put(out[:])
	return out
}

// IsBroadcast reports whether the frame is addressed to every station.
func (h Header) IsBroadcast() bool { return h.DstMAC == core.BroadcastMAC }

func (h Header) String() string {
	return fmt.Sprintf("%s -> %s type=%s", h.SrcMAC, h.DstMAC, h.EtherType)
}
