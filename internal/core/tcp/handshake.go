package tcp

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/core/checksum"
)

const (
	// ReplyDataOffset is the data offset of every SYN-ACK, in words. The 20
	// bytes past the fixed header are zeroed option space.
	ReplyDataOffset = 10
	// ReplyLen is the size of a SYN-ACK segment.
	ReplyLen = ReplyDataOffset * 4

	// DefaultWindow is the advertised receive window when none is configured.
	DefaultWindow = 64240
)

// Result is the outcome of handling one segment.
type Result struct {
	Header        Header
	ChecksumValid bool
	// Reply is the SYN-ACK segment, nil when there is none.
	Reply []byte
	// ISN is the sequence number the reply carries.
	ISN uint32
	// Retransmit is set when the SYN repeats an attempt already in the table.
	Retransmit bool
}

// Handler answers pure SYN segments with a SYN-ACK.
type Handler struct {
	// Window is advertised in every SYN-ACK.
	Window uint16
	// ISN picks sequence numbers; nil means DefaultISN.
	ISN ISNGenerator
	// Table, when set, records answered SYNs.
	Table *Table
	// DropBadChecksum rejects segments whose checksum does not verify.
	DropBadChecksum bool

	now func() time.Time
}

// Handle processes the segment spanning v, carried from src to dst.
// Segments other than a pure SYN return core.ErrUnsupported.
func (hd *Handler) Handle(v core.View, src, dst netip.Addr) (Result, error) {
	h, err := Decode(v)
	if err != nil {
		return Result{}, err
	}

	res := Result{Header: h, ChecksumValid: ChecksumValid(v, src, dst)}
	if !res.ChecksumValid && hd.DropBadChecksum {
		return res, fmt.Errorf("tcp checksum 0x%04x: %w", h.Checksum, core.ErrBadChecksum)
	}

	key := Key{LocalPort: h.DstPort, Remote: netip.AddrPortFrom(src, h.SrcPort)}
	state := StateAwaitingSYN
	prev, seen := hd.lookup(key)
	if seen {
		state = prev.State
	}
	next, err := Transition(state, h.Flags)
	if err != nil {
		return res, err
	}

	switch {
	case seen && prev.PeerSeq == h.Seq:
		res.ISN = prev.ISN
		res.Retransmit = true
	case h.Ack == 0:
		res.ISN = hd.isn().ISN(netip.AddrPortFrom(dst, h.DstPort), key.Remote)
	default:
		res.ISN = h.Ack + 1
	}

	reply := Header{
		SrcPort:    h.DstPort,
		DstPort:    h.SrcPort,
		Seq:        res.ISN,
		Ack:        h.Seq + 1,
		DataOffset: ReplyDataOffset,
		Flags:      FlagSYN | FlagACK,
		Window:     hd.window(),
	}
	buf := make([]byte, ReplyLen)
	if _, err := reply.Put(buf); err != nil {
		return res, err
	}
	binary.BigEndian.PutUint16(buf[16:18], segmentChecksum(dst, src, buf))
	res.Reply = buf

	if hd.Table != nil {
		hd.Table.Put(Attempt{Key: key, State: next, PeerSeq: h.Seq, ISN: res.ISN, Seen: hd.clock()})
	}
	return res, nil
}

func (hd *Handler) lookup(k Key) (Attempt, bool) {
	if hd.Table == nil {
		return Attempt{}, false
	}
	return hd.Table.Get(k)
}

func (hd *Handler) isn() ISNGenerator {
	if hd.ISN == nil {
		return DefaultISN
	}
	return hd.ISN
}

func (hd *Handler) window() uint16 {
	if hd.Window == 0 {
		return DefaultWindow
	}
	return hd.Window
}

func (hd *Handler) clock() time.Time {
	if hd.now != nil {
		return hd.now()
	}
	return time.Now()
}

// ChecksumValid verifies the checksum of the whole segment in v, sent from
// src to dst, against the IPv4 pseudo-header.
func ChecksumValid(v core.View, src, dst netip.Addr) bool {
	if !src.Is4() || !dst.Is4() {
		return false
	}
	return segmentChecksum(src, dst, v.Bytes()) == 0
}

func segmentChecksum(src, dst netip.Addr, seg []byte) uint16 {
	return checksum.Combine(checksum.PseudoHeaderIPv4(src, dst, uint8(core.ProtocolTCP), len(seg)), seg)
}
