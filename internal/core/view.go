package core

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// View is a read-only, bounds-checked window over a borrowed buffer.
// Offsets passed to accessors are relative to the start of the view.
// Every accessor fails with ErrPacketTooShort instead of reading past the end.
type View struct {
	buf   []byte
	start int
	n     int
}

// NewView returns a view over all of b. The view does not copy b.
func NewView(b []byte) View {
	return View{buf: b, n: len(b)}
}

// Len is the number of bytes visible through the view.
func (v View) Len() int { return v.n }

func (v View) check(off, size int) error {
	if off < 0 || size < 0 || off+size > v.n {
		return fmt.Errorf("%w: need %d bytes at offset %d, view has %d", ErrPacketTooShort, size, off, v.n)
	}
	return nil
}

// Need fails unless the view covers at least size bytes.
func (v View) Need(size int) error { return v.check(0, size) }

// Sub returns the view covering [off, off+size).
func (v View) Sub(off, size int) (View, error) {
	if err := v.check(off, size); err != nil {
		return View{}, err
	}
	return View{buf: v.buf, start: v.start + off, n: size}, nil
}

// Tail returns the view covering [off, Len()).
func (v View) Tail(off int) (View, error) {
	if off > v.n || off < 0 {
		return View{}, fmt.Errorf("%w: offset %d beyond %d-byte view", ErrPacketTooShort, off, v.n)
	}
	return View{buf: v.buf, start: v.start + off, n: v.n - off}, nil
}

func (v View) Uint8(off int) (uint8, error) {
	if err := v.check(off, 1); err != nil {
		return 0, err
	}
	return v.buf[v.start+off], nil
}

// Uint16 reads a big-endian 16-bit value.
func (v View) Uint16(off int) (uint16, error) {
	if err := v.check(off, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(v.buf[v.start+off:]), nil
}

// Uint32 reads a big-endian 32-bit value.
func (v View) Uint32(off int) (uint32, error) {
	if err := v.check(off, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(v.buf[v.start+off:]), nil
}

// MAC reads a 6-byte hardware address.
func (v View) MAC(off int) (MAC, error) {
	var m MAC
	if err := v.check(off, len(m)); err != nil {
		return m, err
	}
	copy(m[:], v.buf[v.start+off:])
	return m, nil
}

// Addr4 reads a 4-byte IPv4 address.
func (v View) Addr4(off int) (netip.Addr, error) {
	if err := v.check(off, 4); err != nil {
		return netip.Addr{}, err
	}
	var a [4]byte
	copy(a[:], v.buf[v.start+off:])
	return netip.AddrFrom4(a), nil
}

// CopyTo copies size bytes starting at off into dst, which must be large enough.
func (v View) CopyTo(dst []byte, off, size int) error {
	if err := v.check(off, size); err != nil {
		return err
	}
	if len(dst) < size {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, size, len(dst))
	}
	copy(dst, v.buf[v.start+off:v.start+off+size])
	return nil
}

// Bytes returns the visible bytes. The result aliases the underlying buffer
// and must not be modified.
func (v View) Bytes() []byte {
	return v.buf[v.start : v.start+v.n : v.start+v.n]
}
