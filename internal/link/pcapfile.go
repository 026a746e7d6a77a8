package link

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/tapstack/internal/capture"
	"firestige.xyz/tapstack/internal/core"
)

// PcapFile replays a capture as if its frames arrived on an interface.
// Frames sent to it are written to an optional pcap output. Receive returns
// io.EOF once the input is exhausted.
type PcapFile struct {
	mu     sync.Mutex
	r      *pcapgo.Reader
	out    *capture.Writer
	closed bool
	files  []io.Closer
}

// NewPcapFile reads frames from in and records sent frames to out, which
// may be nil to discard them. The input must carry Ethernet frames.
func NewPcapFile(in io.Reader, out *capture.Writer) (*PcapFile, error) {
	r, err := pcapgo.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}
	if r.LinkType() != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("pcap link type %s: %w", r.LinkType(), core.ErrUnsupported)
	}
	return &PcapFile{r: r, out: out}, nil
}

// OpenPcapFile opens inPath for replay and, unless outPath is empty,
// creates outPath for the replies.
func OpenPcapFile(inPath, outPath string) (*PcapFile, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}

	var out *capture.Writer
	if outPath != "" {
		if out, err = capture.Create(outPath, 0); err != nil {
			in.Close()
			return nil, err
		}
	}

	p, err := NewPcapFile(in, out)
	if err != nil {
		in.Close()
		if out != nil {
			out.Close()
		}
		return nil, err
	}
	p.files = append(p.files, in)
	if out != nil {
		p.files = append(p.files, out)
	}
	return p, nil
}

func (p *PcapFile) Receive(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, core.ErrDeviceClosed
	}

	data, _, err := p.r.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, io.EOF
		}
		return 0, err
	}
	if len(data) > len(buf) {
		return 0, fmt.Errorf("frame of %d bytes: %w", len(data), core.ErrBufferTooSmall)
	}
	return copy(buf, data), nil
}

func (p *PcapFile) Send(frame []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, core.ErrDeviceClosed
	}
	if p.out == nil {
		return len(frame), nil
	}
	if err := p.out.Write(core.Frame{Data: frame, Timestamp: time.Now(), Outbound: true}); err != nil {
		return 0, err
	}
	return len(frame), nil
}

// Close closes the files opened by OpenPcapFile.
func (p *PcapFile) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, c := range p.files {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
