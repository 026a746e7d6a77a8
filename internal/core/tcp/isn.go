package tcp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/tapstack/internal/core"
)

// ISNGenerator picks the initial sequence number of a SYN-ACK.
type ISNGenerator interface {
	ISN(local, remote netip.AddrPort) uint32
}

// FixedISN always returns the same number. It makes replies reproducible
// and is unsuitable anywhere sequence prediction matters.
type FixedISN uint32

// DefaultISN is the FixedISN used when nothing else is configured.
const DefaultISN FixedISN = 0x00001000

func (f FixedISN) ISN(_, _ netip.AddrPort) uint32 { return uint32(f) }

// RandomISN draws every number from crypto/rand.
type RandomISN struct{}

func (RandomISN) ISN(_, _ netip.AddrPort) uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// NewISNGenerator builds a generator by name: "fixed" (or empty) returns
// FixedISN(fixed), "random" returns RandomISN.
func NewISNGenerator(mode string, fixed uint32) (ISNGenerator, error) {
	switch strings.ToLower(mode) {
	case "", "fixed":
		return FixedISN(fixed), nil
	case "random":
		return RandomISN{}, nil
	}
	return nil, fmt.Errorf("isn mode %q: %w", mode, core.ErrConfigInvalid)
}
