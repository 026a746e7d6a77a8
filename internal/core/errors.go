// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with context via fmt.Errorf("...: %w", err)
// and classify with errors.Is.
var (
	// Packet decoding errors
	ErrPacketTooShort = errors.New("tapstack: packet too short")
	ErrMalformed      = errors.New("tapstack: malformed header")
	ErrBadChecksum    = errors.New("tapstack: checksum mismatch")

	// Recognized but not handled by this stack
	ErrUnsupported = errors.New("tapstack: unsupported")

	// Reply construction errors
	ErrBufferTooSmall = errors.New("tapstack: outbound buffer too small")

	// Configuration errors
	ErrConfigInvalid = errors.New("tapstack: invalid configuration")

	// Device errors
	ErrDeviceClosed = errors.New("tapstack: device closed")
)

// IsMalformed reports whether err belongs to the malformed-input class:
// short buffers and invalid header fields.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrPacketTooShort) || errors.Is(err, ErrMalformed)
}
