// Package tcp decodes TCP segment headers and answers connection requests
// with a SYN-ACK. Nothing past the first handshake step is modelled.
package tcp

import (
	"encoding/binary"
	"fmt"
	"strings"

	"firestige.xyz/tapstack/internal/core"
)

const (
	// MinHeaderLen is the header size without options.
	MinHeaderLen = 20
	// MaxOptionsLen is the largest option region a data offset can describe.
	MaxOptionsLen = 40

	minDataOffset = 5
	maxDataOffset = 15
)

// Flags holds the nine TCP control bits, FIN in bit 0 up to NS in bit 8.
type Flags uint16

const (
	FlagFIN Flags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
	FlagNS

	flagMask = 0x01FF
)

// HasAll reports whether every bit of mask is set.
func (f Flags) HasAll(mask Flags) bool { return f&mask == mask }

// HasAny reports whether at least one bit of mask is set.
func (f Flags) HasAny(mask Flags) bool { return f&mask != 0 }

// IsPureSYN reports whether SYN is the only control bit set.
func (f Flags) IsPureSYN() bool { return f&flagMask == FlagSYN }

var flagNames = [...]string{"FIN", "SYN", "RST", "PSH", "ACK", "URG", "ECE", "CWR", "NS"}

// String lists the set flags from FIN upwards, e.g. "[SYN,ACK]".
func (f Flags) String() string {
	var set []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			set = append(set, name)
		}
	}
	return "[" + strings.Join(set, ",") + "]"
}

// Header is a decoded TCP header. Options is a view over the raw option
// bytes; they are sized but never interpreted.
type Header struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	DataOffset uint8 // header length in 32-bit words
	Reserved   uint8 // 3 bits
	Flags      Flags
	Window     uint16
	Checksum   uint16
	Urgent     uint16
	Options    core.View
}

// OptionsLen returns the option region size for a data offset in words.
// Offsets outside 5..15 are malformed.
func OptionsLen(dataOffset uint8) (int, error) {
	if dataOffset < minDataOffset || dataOffset > maxDataOffset {
		return 0, fmt.Errorf("tcp data offset %d: %w", dataOffset, core.ErrMalformed)
	}
	return int(dataOffset)*4 - MinHeaderLen, nil
}

// Decode parses the header at the start of v. v must cover the data offset.
func Decode(v core.View) (Header, error) {
	if err := v.Need(MinHeaderLen); err != nil {
		return Header{}, fmt.Errorf("tcp header: %w", err)
	}

	var h Header
	h.SrcPort, _ = v.Uint16(0)
	h.DstPort, _ = v.Uint16(2)
	h.Seq, _ = v.Uint32(4)
	h.Ack, _ = v.Uint32(8)

	// Data offset (4 bits), reserved (3 bits), NS and the other 8 flags at offset 12
	off, _ := v.Uint16(12)
	h.DataOffset = uint8(off >> 12)
	h.Reserved = uint8(off>>9) & 0x07
	h.Flags = Flags(off & flagMask)

	h.Window, _ = v.Uint16(14)
	h.Checksum, _ = v.Uint16(16)
	h.Urgent, _ = v.Uint16(18)

	optLen, err := OptionsLen(h.DataOffset)
	if err != nil {
		return h, err
	}
	if h.Options, err = v.Sub(MinHeaderLen, optLen); err != nil {
		return h, fmt.Errorf("tcp options: %w", err)
	}
	return h, nil
}

// HeaderLen is the header size in bytes, options included.
func (h Header) HeaderLen() int { return int(h.DataOffset) * 4 }

// Put encodes h into buf, writing h.Checksum verbatim. The option region
// is zero-filled up to the data offset.
func (h Header) Put(buf []byte) (int, error) {
	n := h.HeaderLen()
	if n < MinHeaderLen {
		return 0, fmt.Errorf("tcp data offset %d: %w", h.DataOffset, core.ErrMalformed)
	}
	if len(buf) < n {
		return 0, fmt.Errorf("tcp header needs %d bytes: %w", n, core.ErrBufferTooSmall)
	}
	binary.BigEndian.PutUint16(buf[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], h.DstPort)
	binary.BigEndian.PutUint32(buf[4:8], h.Seq)
	binary.BigEndian.PutUint32(buf[8:12], h.Ack)
	off := uint16(h.DataOffset)<<12 | uint16(h.Reserved&0x07)<<9 | uint16(h.Flags&flagMask)
	binary.BigEndian.PutUint16(buf[12:14], off)
	binary.BigEndian.PutUint16(buf[14:16], h.Window)
	binary.BigEndian.PutUint16(buf[16:18], h.Checksum)
	binary.BigEndian.PutUint16(buf[18:20], h.Urgent)
	clear(buf[MinHeaderLen:n])
	if h.Options.Len() > 0 {
		_ = h.Options.CopyTo(buf[MinHeaderLen:n], 0, min(h.Options.Len(), n-MinHeaderLen))
	}
	return n, nil
}

func (h Header) String() string {
	return fmt.Sprintf("%d -> %d %s seq=%d ack=%d win=%d", h.SrcPort, h.DstPort, h.Flags, h.Seq, h.Ack, h.Window)
}
