// Package core defines core data structures with zero external dependencies.
package core

import "time"

// Frame is one link-layer frame as exchanged with a device, with the
// link preamble already removed.
type Frame struct {
	Data      []byte    // Ethernet frame, header first
	Timestamp time.Time // Receive or send time
	Outbound  bool      // Produced by the stack rather than received
}
