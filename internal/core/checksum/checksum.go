// Package checksum implements the Internet one's-complement checksum (RFC 1071)
// used by the IPv4, ICMP and TCP codecs.
package checksum

import (
	"encoding/binary"
	"errors"
	"net/netip"
)

// ErrOddLength is returned by SumWords when the input is not 16-bit aligned.
var ErrOddLength = errors.New("tapstack: checksum input is not 16-bit aligned")

// Sum returns the one's complement of the one's-complement sum of b taken
// as big-endian 16-bit words. A trailing odd byte is padded with zero.
func Sum(b []byte) uint16 {
	return ^fold(partial(0, b))
}

// SumWords is Sum restricted to inputs made of whole 16-bit words.
func SumWords(b []byte) (uint16, error) {
	if len(b)%2 != 0 {
		return 0, ErrOddLength
	}
	return Sum(b), nil
}

// Combine is Sum seeded with a partial sum, typically from PseudoHeaderIPv4.
func Combine(initial uint32, b []byte) uint16 {
	return ^fold(partial(initial, b))
}

// PseudoHeaderIPv4 returns the partial sum of the IPv4 pseudo-header:
// source, destination, a zero byte, the protocol and the segment length.
func PseudoHeaderIPv4(src, dst netip.Addr, protocol uint8, length int) uint32 {
	s := src.As4()
	d := dst.As4()
	var sum uint32
	sum += uint32(binary.BigEndian.Uint16(s[0:2]))
	sum += uint32(binary.BigEndian.Uint16(s[2:4]))
	sum += uint32(binary.BigEndian.Uint16(d[0:2]))
	sum += uint32(binary.BigEndian.Uint16(d[2:4]))
	sum += uint32(protocol)
	sum += uint32(length) & 0xffff
	return sum
}

func partial(sum uint32, b []byte) uint32 {
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
		// keep headroom for very large inputs
		if sum > 0xffff0000 {
			sum = (sum & 0xffff) + (sum >> 16)
		}
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	return sum
}

// fold adds the carries back into the low 16 bits until none remain.
func fold(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum)
}
