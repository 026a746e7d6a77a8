//go:build linux

package link

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"firestige.xyz/tapstack/internal/core"
)

const cloneDevice = "/dev/net/tun"

// TAP is a Linux TAP interface opened through the clone device.
type TAP struct {
	name       string
	packetInfo bool
	file       *os.File

	// rbuf and wbuf hold frames with their preamble when packetInfo is set.
	rbuf []byte
	wmu  sync.Mutex
	wbuf []byte
}

// OpenTAP attaches to (or creates) the TAP interface name. With packetInfo
// the kernel prefixes every frame with a 4-byte preamble, which TAP strips on
// receive and adds on send. frameSize bounds the frames exchanged.
func OpenTAP(name string, packetInfo bool, frameSize int) (*TAP, error) {
	fd, err := unix.Open(cloneDevice, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cloneDevice, err)
	}

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("interface name %q: %w", name, err)
	}
	flags := uint16(unix.IFF_TAP)
	if !packetInfo {
		flags |= unix.IFF_NO_PI
	}
	ifr.SetUint16(flags)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("TUNSETIFF %s: %w", name, err)
	}

	// Non-blocking so the runtime poller owns the descriptor and Close
	// interrupts a pending Read.
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}

	t := &TAP{
		name:       ifr.Name(),
		packetInfo: packetInfo,
		file:       os.NewFile(uintptr(fd), cloneDevice),
	}
	if packetInfo {
		t.rbuf = make([]byte, frameSize+PacketInfoLen)
		t.wbuf = make([]byte, frameSize+PacketInfoLen)
	}
	return t, nil
}

// Name is the interface name the kernel assigned.
func (t *TAP) Name() string { return t.name }

func (t *TAP) Receive(buf []byte) (int, error) {
	if !t.packetInfo {
		n, err := t.file.Read(buf)
		return n, t.wrap(err)
	}

	n, err := t.file.Read(t.rbuf)
	if err != nil {
		return 0, t.wrap(err)
	}
	frame, err := stripPacketInfo(t.rbuf[:n])
	if err != nil {
		return 0, err
	}
	if len(frame) > len(buf) {
		return 0, fmt.Errorf("frame of %d bytes: %w", len(frame), core.ErrBufferTooSmall)
	}
	return copy(buf, frame), nil
}

func (t *TAP) Send(frame []byte) (int, error) {
	if !t.packetInfo {
		n, err := t.file.Write(frame)
		return n, t.wrap(err)
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if len(frame)+PacketInfoLen > len(t.wbuf) {
		return 0, fmt.Errorf("frame of %d bytes: %w", len(frame), core.ErrBufferTooSmall)
	}
	putPacketInfo(t.wbuf, frame)
	n := copy(t.wbuf[PacketInfoLen:], frame)
	w, err := t.file.Write(t.wbuf[:PacketInfoLen+n])
	if err != nil {
		return 0, t.wrap(err)
	}
	return max(w-PacketInfoLen, 0), nil
}

func (t *TAP) Close() error {
	return t.file.Close()
}

func (t *TAP) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("tap %s: %w", t.name, core.ErrDeviceClosed)
	}
	return fmt.Errorf("tap %s: %w", t.name, err)
}
