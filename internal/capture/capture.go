// Package capture records frames to a pcap file.
package capture

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/tapstack/internal/core"
)

// Writer streams Ethernet frames in pcap format. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       *pcapgo.Writer
	closer  io.Closer
	snapLen uint32
	count   uint64
}

// NewWriter writes the pcap file header to out and returns a Writer over it.
func NewWriter(out io.Writer, snapLen uint32) (*Writer, error) {
	if snapLen == 0 {
		snapLen = 65535
	}
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	c, _ := out.(io.Closer)
	return &Writer{w: w, closer: c, snapLen: snapLen}, nil
}

// Create truncates path and opens a Writer on it.
func Create(path string, snapLen uint32) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	w, err := NewWriter(f, snapLen)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends frame, truncated to the snap length.
func (w *Writer) Write(frame core.Frame) error {
	data := frame.Data
	if uint32(len(data)) > w.snapLen {
		data = data[:w.snapLen]
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     frame.Timestamp,
		CaptureLength: len(data),
		Length:        len(frame.Data),
	}, data); err != nil {
		return fmt.Errorf("pcap: write frame: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of frames written.
func (w *Writer) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close closes the underlying file when the Writer owns one.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
