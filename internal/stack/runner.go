package stack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"firestige.xyz/tapstack/internal/capture"
	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/filter"
	"firestige.xyz/tapstack/internal/link"
	"firestige.xyz/tapstack/internal/log"
	"firestige.xyz/tapstack/internal/metrics"
)

// DefaultFrameSize fits an 802.1Q tagged 1500-byte payload.
const DefaultFrameSize = 1522

// Stats counts what the runner did. It is safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	received uint64
	sent     uint64
	dropped  map[string]uint64
}

func (s *Stats) addReceived() {
	s.mu.Lock()
	s.received++
	s.mu.Unlock()
}

func (s *Stats) addSent() {
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
}

func (s *Stats) addDrop(reason string) {
	s.mu.Lock()
	if s.dropped == nil {
		s.dropped = make(map[string]uint64)
	}
	s.dropped[reason]++
	s.mu.Unlock()
}

// StatsSnapshot is a copy of Stats at one point in time.
type StatsSnapshot struct {
	Received uint64
	Sent     uint64
	Dropped  map[string]uint64
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{Received: s.received, Sent: s.sent, Dropped: make(map[string]uint64, len(s.dropped))}
	for k, v := range s.dropped {
		snap.Dropped[k] = v
	}
	return snap
}

// Fields renders the snapshot as log fields.
func (s StatsSnapshot) Fields() map[string]interface{} {
	fields := map[string]interface{}{"received": s.Received, "sent": s.Sent}
	reasons := make([]string, 0, len(s.Dropped))
	for r := range s.Dropped {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fields["dropped_"+r] = s.Dropped[r]
	}
	return fields
}

// Runner reads frames from a device, one at a time, and sends the replies
// the Dispatcher builds.
type Runner struct {
	dev       link.Device
	disp      *Dispatcher
	name      string
	filters   []filter.Filter
	capture   *capture.Writer
	maxFrames uint64
	frameSize int
	log       log.Logger
	now       func() time.Time

	stats Stats
	out   []byte
}

// Option configures a Runner.
type Option func(*Runner)

// WithFilters places filters in front of the dispatcher.
func WithFilters(filters ...filter.Filter) Option {
	return func(r *Runner) { r.filters = append(r.filters, filters...) }
}

// WithCapture records every received and sent frame.
func WithCapture(w *capture.Writer) Option {
	return func(r *Runner) { r.capture = w }
}

// WithMaxFrames stops the runner after n received frames; 0 means no limit.
func WithMaxFrames(n uint64) Option {
	return func(r *Runner) { r.maxFrames = n }
}

// WithFrameSize sizes the receive and send buffers.
func WithFrameSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.frameSize = n
		}
	}
}

// WithLogger overrides the process logger.
func WithLogger(l log.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// NewRunner binds dev to disp. name labels metrics and logs.
func NewRunner(dev link.Device, disp *Dispatcher, name string, opts ...Option) *Runner {
	r := &Runner{
		dev:       dev,
		disp:      disp,
		name:      name,
		frameSize: DefaultFrameSize,
		log:       log.GetLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("interface", name)
	return r
}

// Stats returns the runner's counters.
func (r *Runner) Stats() *Stats { return &r.stats }

// Run processes frames until ctx is cancelled, the device is closed or
// exhausted, or the frame limit is reached. Cancelling ctx closes the device
// to unblock a pending Receive. Only a device failure is returned.
func (r *Runner) Run(ctx context.Context) error {
	in := make([]byte, r.frameSize)
	r.out = make([]byte, r.frameSize)
	accepted := filter.NewCounterFilter(metrics.FramesAcceptedTotal.WithLabelValues(r.name))
	filters := append(append([]filter.Filter(nil), r.filters...), accepted)
	chain := filter.NewFilterChain(r.process, filters...)

	stop := context.AfterFunc(ctx, func() { _ = r.dev.Close() })
	defer stop()
	defer r.logSummary()

	r.log.Info("stack running")
	var received uint64
	for r.maxFrames == 0 || received < r.maxFrames {
		n, err := r.dev.Receive(in)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, core.ErrDeviceClosed):
				return nil
			case errors.Is(err, io.EOF):
				r.log.Info("end of input")
				return nil
			case core.IsMalformed(err), errors.Is(err, core.ErrBufferTooSmall):
				r.log.WithError(err).Warn("unreadable frame dropped")
				r.drop(metrics.DropMalformed)
				continue
			default:
				return fmt.Errorf("receive on %s: %w", r.name, err)
			}
		}

		received++
		r.stats.addReceived()
		metrics.FramesReceivedTotal.WithLabelValues(r.name).Inc()

		frame := core.Frame{Data: in[:n], Timestamp: r.now()}
		r.record(frame)

		before := accepted.Count()
		chain.Filter(&frame)
		if accepted.Count() == before {
			r.drop(metrics.DropFiltered)
		}
	}
	r.log.WithField("max_frames", r.maxFrames).Info("frame limit reached")
	return nil
}

// process is the end of the filter chain.
func (r *Runner) process(frame *core.Frame) {
	start := r.now()
	o := r.disp.Dispatch(frame.Data, r.out)
	metrics.ProcessLatencySeconds.Observe(time.Since(start).Seconds())
	r.updateGauges()

	if !o.Send {
		r.drop(o.Drop)
		return
	}

	reply := r.out[:o.N]
	if _, err := r.dev.Send(reply); err != nil {
		r.log.WithError(err).WithField("protocol", o.Protocol).Error("send failed")
		r.drop(metrics.DropSendError)
		return
	}
	r.stats.addSent()
	metrics.FramesSentTotal.WithLabelValues(r.name, o.Protocol).Inc()
	r.record(core.Frame{Data: reply, Timestamp: r.now(), Outbound: true})
}

func (r *Runner) drop(reason string) {
	r.stats.addDrop(reason)
	metrics.FramesDroppedTotal.WithLabelValues(r.name, reason).Inc()
}

func (r *Runner) record(frame core.Frame) {
	if r.capture == nil {
		return
	}
	if err := r.capture.Write(frame); err != nil {
		r.log.WithError(err).Warn("capture write failed")
	}
}

func (r *Runner) updateGauges() {
	metrics.ARPCacheEntries.Set(float64(r.disp.Cache().Len()))
	if t := r.disp.Handshakes(); t != nil {
		metrics.TCPHandshakeAttempts.Set(float64(t.Len()))
	}
}

func (r *Runner) logSummary() {
	r.log.WithFields(r.stats.Snapshot().Fields()).Info("stack stopped")
}
