//go:build !linux

package link

import (
	"fmt"
	"runtime"

	"firestige.xyz/tapstack/internal/core"
)

// TAP is only available on Linux.
type TAP struct{}

func OpenTAP(name string, packetInfo bool, frameSize int) (*TAP, error) {
	return nil, fmt.Errorf("tap devices on %s: %w", runtime.GOOS, core.ErrUnsupported)
}

func (t *TAP) Name() string                    { return "" }
func (t *TAP) Receive(buf []byte) (int, error) { return 0, core.ErrDeviceClosed }
func (t *TAP) Send(frame []byte) (int, error)  { return 0, core.ErrDeviceClosed }
func (t *TAP) Close() error                    { return nil }
