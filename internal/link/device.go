// Package link provides the frame devices the stack reads from and writes to.
package link

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/tapstack/internal/core"
)

// Device delivers and accepts whole Ethernet frames.
type Device interface {
	// Receive blocks until a frame arrives and copies it into buf.
	// After Close it returns an error wrapping core.ErrDeviceClosed.
	Receive(buf []byte) (int, error)
	// Send writes one frame.
	Send(frame []byte) (int, error)
	Close() error
}

// PacketInfoLen is the size of the preamble a TUN/TAP device puts in front
// of every frame unless IFF_NO_PI is set: 2 bytes of flags, then the
// ether-type of the frame.
const PacketInfoLen = 4

// stripPacketInfo returns the frame behind the preamble in b.
func stripPacketInfo(b []byte) ([]byte, error) {
	if len(b) < PacketInfoLen {
		return nil, fmt.Errorf("packet information preamble: %w", core.ErrPacketTooShort)
	}
	return b[PacketInfoLen:], nil
}

// putPacketInfo writes the preamble for frame into dst.
func putPacketInfo(dst, frame []byte) {
	binary.BigEndian.PutUint16(dst[0:2], 0)
	var proto uint16
	if len(frame) >= 14 {
		proto = binary.BigEndian.Uint16(frame[12:14])
	}
	binary.BigEndian.PutUint16(dst[2:4], proto)
}
