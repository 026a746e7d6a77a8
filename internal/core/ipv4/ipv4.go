// Package ipv4 implements the fixed IPv4 header codec.
package ipv4

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/core/checksum"
)

const (
	// HeaderLen is the size of a header without options.
	HeaderLen = 20

	minIHL = 5
)

// Flag bits of the 3-bit flags field.
const (
	FlagMoreFragments = 0x1
	FlagDontFragment  = 0x2
)

// Header represents the IPv4 header. Options are not decoded.
type Header struct {
	Version    uint8
	IHL        uint8 // header length in 32-bit words
	DSCP       uint8
	ECN        uint8
	TotalLen   uint16
	ID         uint16
	Flags      uint8
	FragOffset uint16 // in 8-byte blocks
	TTL        uint8
	Protocol   core.IPProtocol
	Checksum   uint16
	Src        netip.Addr
	Dst        netip.Addr
}

// Decode parses the header at the start of v. The version must be 4 and v
// must cover the IHL*4 bytes the header claims.
func Decode(v core.View) (Header, error) {
	if err := v.Need(HeaderLen); err != nil {
		return Header{}, fmt.Errorf("ipv4 header: %w", err)
	}

	var h Header
	verIHL, _ := v.Uint8(0)
	h.Version = verIHL >> 4
	h.IHL = verIHL & 0x0F
	if h.Version != 4 {
		return h, fmt.Errorf("ipv4 version %d: %w", h.Version, core.ErrMalformed)
	}
	if h.IHL < minIHL {
		return h, fmt.Errorf("ipv4 ihl %d: %w", h.IHL, core.ErrMalformed)
	}
	if err := v.Need(h.HeaderLen()); err != nil {
		return h, fmt.Errorf("ipv4 header with options: %w", err)
	}

	// DSCP (upper 6 bits) and ECN (lower 2 bits) at offset 1
	tos, _ := v.Uint8(1)
	h.DSCP = tos >> 2
	h.ECN = tos & 0x03

	h.TotalLen, _ = v.Uint16(2)
	h.ID, _ = v.Uint16(4)

	// Flags (3 bits) and fragment offset (13 bits) at offset 6
	ff, _ := v.Uint16(6)
	h.Flags = uint8(ff >> 13)
	h.FragOffset = ff & 0x1FFF

	h.TTL, _ = v.Uint8(8)
	proto, _ := v.Uint8(9)
	h.Protocol = core.IPProtocol(proto)
	h.Checksum, _ = v.Uint16(10)
	h.Src, _ = v.Addr4(12)
	h.Dst, _ = v.Addr4(16)
	return h, nil
}

// HeaderLen is the header size in bytes, options included.
func (h Header) HeaderLen() int { return int(h.IHL) * 4 }

// PayloadLen is the number of payload bytes TotalLen announces.
func (h Header) PayloadLen() int { return int(h.TotalLen) - h.HeaderLen() }

// IsFragment reports whether the datagram is a fragment.
func (h Header) IsFragment() bool {
	return h.Flags&FlagMoreFragments != 0 || h.FragOffset != 0
}

// ProtocolOf maps the protocol field to a protocol this stack knows about.
// It returns false for any other value.
func ProtocolOf(h Header) (core.IPProtocol, bool) {
	switch h.Protocol {
	case core.ProtocolICMP, core.ProtocolIGMP, core.ProtocolTCP, core.ProtocolUDP:
		return h.Protocol, true
	}
	return h.Protocol, false
}

// Put encodes h as a 20-byte header, writing h.Checksum verbatim.
// Options are not encoded; IHL is written as given.
func (h Header) Put(buf []byte) error {
	if len(buf) < HeaderLen {
		return fmt.Errorf("ipv4 header: %w", core.ErrBufferTooSmall)
	}
	buf[0] = h.Version<<4 | h.IHL&0x0F
	buf[1] = h.DSCP<<2 | h.ECN&0x03
	binary.BigEndian.PutUint16(buf[2:4], h.TotalLen)
	binary.BigEndian.PutUint16(buf[4:6], h.ID)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Flags)<<13|h.FragOffset&0x1FFF)
	buf[8] = h.TTL
	buf[9] = byte(h.Protocol)
	binary.BigEndian.PutUint16(buf[10:12], h.Checksum)
	putAddr4(buf[12:16], h.Src)
	putAddr4(buf[16:20], h.Dst)
	return nil
}

func putAddr4(dst []byte, a netip.Addr) {
	if !a.Is4() {
		clear(dst[:4])
		return
	}
	b := a.As4()
	copy(dst, b[:])
}

// ChecksumValid reports whether the header at the start of v verifies.
func ChecksumValid(v core.View, h Header) bool {
	hdr, err := v.Sub(0, h.HeaderLen())
	if err != nil {
		return false
	}
	return checksum.Sum(hdr.Bytes()) == 0
}

// BuildReplyHeader copies the 20-byte header at the start of orig. With flip
// set, source and destination are swapped. Options are dropped (IHL becomes 5)
// and the checksum is always zeroed and recomputed. TTL and total length are
// those of the original.
func BuildReplyHeader(orig core.View, flip bool) ([HeaderLen]byte, error) {
	var out [HeaderLen]byte
	if err := orig.CopyTo(out[:], 0, HeaderLen); err != nil {
		return out, fmt.Errorf("ipv4 reply header: %w", err)
	}

	out[0] = out[0]&0xF0 | minIHL
	if flip {
		var src [4]byte
		copy(src[:], out[12:16])
		copy(out[12:16], out[16:20])
		copy(out[16:20], src[:])
	}
	SetChecksum(out[:])
	return out, nil
}

// SetTotalLen rewrites the total length of the header in hdr and refreshes
// its checksum.
func SetTotalLen(hdr []byte, total int) error {
	if len(hdr) < HeaderLen {
		return fmt.Errorf("ipv4 header: %w", core.ErrBufferTooSmall)
	}
	if total < HeaderLen || total > 0xFFFF {
		return fmt.Errorf("ipv4 total length %d: %w", total, core.ErrMalformed)
	}
	binary.BigEndian.PutUint16(hdr[2:4], uint16(total))
	SetChecksum(hdr)
	return nil
}

// SetChecksum zeroes the checksum field of the 20-byte header in hdr,
// recomputes it and writes it back.
func SetChecksum(hdr []byte) {
	hdr[10], hdr[11] = 0, 0
	binary.BigEndian.PutUint16(hdr[10:12], checksum.Sum(hdr[:HeaderLen]))
}

func (h Header) String() string {
	return fmt.Sprintf("%s -> %s proto=%s ttl=%d len=%d", h.Src, h.Dst, h.Protocol, h.TTL, h.TotalLen)
}
