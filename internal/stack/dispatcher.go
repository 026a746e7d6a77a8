// Package stack turns inbound frames into reply frames.
package stack

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/time/rate"

	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/core/arp"
	"firestige.xyz/tapstack/internal/core/ethernet"
	"firestige.xyz/tapstack/internal/core/icmp"
	"firestige.xyz/tapstack/internal/core/ipv4"
	"firestige.xyz/tapstack/internal/core/tcp"
	"firestige.xyz/tapstack/internal/log"
	"firestige.xyz/tapstack/internal/metrics"
)

var (
	errNotLocal   = fmt.Errorf("destination is not the local address: %w", core.ErrUnsupported)
	errNotUnicast = fmt.Errorf("destination is not a unicast address: %w", core.ErrUnsupported)
)

var limitedBroadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// Unsupported and ignored traffic is logged at Info for the first
// noticeBurst frames, then at most once per noticeInterval.
const (
	noticeBurst    = 10
	noticeInterval = 10 * time.Second
)

// Config holds everything a Dispatcher needs. Identity is required.
type Config struct {
	Identity core.Identity

	// DropBadChecksum drops IPv4, ICMP and TCP input whose checksum fails
	// instead of only reporting it.
	DropBadChecksum bool
	// OnlyLocalDestination ignores IPv4 packets not sent to Identity.IPv4.
	OnlyLocalDestination bool
	// PreserveReplyLength copies the inbound IPv4 total length into replies.
	PreserveReplyLength bool

	MergePolicy arp.MergePolicy
	ARPTTL      time.Duration
	Static      []arp.Entry

	Window          uint16
	ISN             tcp.ISNGenerator
	TrackHandshakes bool
	HandshakeTTL    time.Duration
}

// Outcome describes what happened to one frame.
type Outcome struct {
	Send     bool
	N        int
	Protocol string
	// Drop is the metrics.Drop* reason when nothing is sent.
	Drop string
	Err  error
}

// Dispatcher decodes one frame at a time and lays out the reply, if any, in
// the caller's outbound buffer. It is the only writer of that buffer. A
// Dispatcher is not safe for concurrent use; its ARP cache is.
type Dispatcher struct {
	local    core.Identity
	cfg      Config
	resolver *arp.Resolver
	icmp     *icmp.Responder
	tcp      *tcp.Handler
	log      log.Logger
	notice   *rate.Sometimes
}

// NewDispatcher validates cfg and builds the protocol handlers.
func NewDispatcher(cfg Config, logger log.Logger) (*Dispatcher, error) {
	if err := cfg.Identity.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.GetLogger()
	}

	cache := arp.NewCache(cfg.ARPTTL)
	for _, e := range cfg.Static {
		cache.AddStatic(e.IP, e.MAC)
	}
	resolver := arp.NewResolver(cache, cfg.Identity, cfg.MergePolicy)

	handler := &tcp.Handler{
		Window:          cfg.Window,
		ISN:             cfg.ISN,
		DropBadChecksum: cfg.DropBadChecksum,
	}
	if cfg.TrackHandshakes {
		handler.Table = tcp.NewTable(cfg.HandshakeTTL)
	}

	return &Dispatcher{
		local:    cfg.Identity,
		cfg:      cfg,
		resolver: resolver,
		icmp:     &icmp.Responder{DropBadChecksum: cfg.DropBadChecksum},
		tcp:      handler,
		log:      logger.WithField("component", "dispatcher"),
		notice:   &rate.Sometimes{First: noticeBurst, Interval: noticeInterval},
	}, nil
}

// Cache returns the ARP cache.
func (d *Dispatcher) Cache() *arp.Cache { return d.resolver.Cache() }

// Handshakes returns the handshake table, nil unless tracking is on.
func (d *Dispatcher) Handshakes() *tcp.Table { return d.tcp.Table }

// Process handles the frame in and writes any reply to out. It reports
// whether a reply should be sent and its length.
func (d *Dispatcher) Process(in, out []byte) (bool, int) {
	o := d.Dispatch(in, out)
	return o.Send, o.N
}

// Dispatch is Process with the full outcome. Errors are reported here and
// returned in Outcome.Err for accounting; none of them is fatal.
func (d *Dispatcher) Dispatch(in, out []byte) Outcome {
	o, err := d.handle(in, out)
	if err != nil {
		o.Send, o.N, o.Err = false, 0, err
		o.Drop = d.report(o.Protocol, err)
		return o
	}
	if !o.Send {
		o.Drop = metrics.DropNoReply
	}
	return o
}

func (d *Dispatcher) report(proto string, err error) string {
	l := d.log.WithField("protocol", proto).WithError(err)
	switch {
	case errors.Is(err, errNotLocal):
		if l.IsDebugEnabled() {
			l.Debug("not addressed to us, dropped")
		}
		return metrics.DropNotLocal
	case errors.Is(err, errNotUnicast):
		d.inform(l, "broadcast or multicast destination not answered")
		return metrics.DropNotUnicast
	case errors.Is(err, core.ErrBufferTooSmall):
		l.Warn("reply does not fit the outbound buffer")
		return metrics.DropBuffer
	case errors.Is(err, core.ErrBadChecksum):
		l.Warn("checksum mismatch, dropped")
		return metrics.DropChecksum
	case core.IsMalformed(err):
		l.Warn("malformed frame dropped")
		return metrics.DropMalformed
	case errors.Is(err, core.ErrUnsupported):
		d.inform(l, "unsupported frame ignored")
		return metrics.DropUnsupported
	default:
		l.Error("frame processing failed")
		return metrics.DropMalformed
	}
}

// inform logs msg at Debug when enabled, otherwise at Info within the
// notice rate.
func (d *Dispatcher) inform(l log.Logger, msg string) {
	if l.IsDebugEnabled() {
		l.Debug(msg)
		return
	}
	d.notice.Do(func() { l.Info(msg) })
}

func (d *Dispatcher) handle(in, out []byte) (Outcome, error) {
	v := core.NewView(in)
	eth, err := ethernet.Decode(v)
	if err != nil {
		return Outcome{Protocol: "ethernet"}, err
	}
	payload, _ := v.Tail(ethernet.HeaderLen)

	switch eth.EtherType {
	case core.EtherTypeARP:
		return d.handleARP(eth, payload, out)
	case core.EtherTypeIPv4:
		return d.handleIPv4(eth, payload, out)
	default:
		return Outcome{Protocol: eth.EtherType.String()},
			fmt.Errorf("ether-type %s: %w", eth.EtherType, core.ErrUnsupported)
	}
}

func (d *Dispatcher) handleARP(eth ethernet.Header, payload core.View, out []byte) (Outcome, error) {
	o := Outcome{Protocol: "arp"}
	res, err := d.resolver.Handle(payload)
	if res.Merged {
		metrics.ARPCacheUpdatesTotal.WithLabelValues(res.Merge.String()).Inc()
		if res.Merge == arp.Superseded {
			d.log.WithField("ip", res.Message.SenderIP).WithField("mac", res.Message.SenderMAC).
				Info("arp binding changed")
		}
	}
	if err != nil {
		return o, err
	}
	if d.log.IsDebugEnabled() {
		d.log.WithField("merge", res.Merge).Debugf("arp %s", res.Message)
	}
	if res.Reply == nil {
		return o, nil
	}

	n := ethernet.HeaderLen + len(res.Reply)
	if len(out) < n {
		return o, fmt.Errorf("arp reply needs %d bytes, have %d: %w", n, len(out), core.ErrBufferTooSmall)
	}
	hdr := ethernet.BuildReply(eth, d.local.MAC)
	copy(out, hdr[:])
	copy(out[ethernet.HeaderLen:], res.Reply)
	o.Send, o.N = true, n
	return o, nil
}

func (d *Dispatcher) handleIPv4(eth ethernet.Header, payload core.View, out []byte) (Outcome, error) {
	o := Outcome{Protocol: "ipv4"}
	ip, err := ipv4.Decode(payload)
	if err != nil {
		return o, err
	}
	if !ipv4.ChecksumValid(payload, ip) {
		if err := d.checksumMismatch("ipv4", ip.Checksum); err != nil {
			return o, err
		}
	}
	if int(ip.TotalLen) < ip.HeaderLen() {
		return o, fmt.Errorf("ipv4 total length %d below header length %d: %w", ip.TotalLen, ip.HeaderLen(), core.ErrMalformed)
	}
	seg, err := payload.Sub(ip.HeaderLen(), ip.PayloadLen())
	if err != nil {
		return o, fmt.Errorf("ipv4 payload: %w", err)
	}
	if d.cfg.OnlyLocalDestination && ip.Dst != d.local.IPv4 {
		return o, fmt.Errorf("ipv4 %s: %w", ip.Dst, errNotLocal)
	}
	if ip.IsFragment() {
		return o, fmt.Errorf("ipv4 fragment id=%d offset=%d: %w", ip.ID, ip.FragOffset, core.ErrUnsupported)
	}

	proto, known := ipv4.ProtocolOf(ip)
	o.Protocol = proto.String()
	if !known {
		return o, fmt.Errorf("ipv4 %s: %w", proto, core.ErrUnsupported)
	}
	if proto == core.ProtocolICMP || proto == core.ProtocolTCP {
		if err := d.checkUnicast(eth, ip); err != nil {
			return o, err
		}
	}

	var upper []byte
	switch proto {
	case core.ProtocolICMP:
		res, err := d.icmp.Handle(seg)
		if err == nil && !res.ChecksumValid {
			_ = d.checksumMismatch("icmp", res.Message.Checksum)
		} else if errors.Is(err, core.ErrBadChecksum) {
			metrics.ChecksumErrorsTotal.WithLabelValues("icmp").Inc()
		}
		if err != nil {
			return o, err
		}
		if res.Outcome == icmp.OutcomeEchoReplyObserved {
			d.log.WithField("src", ip.Src).WithField("id", res.Message.Identifier()).
				WithField("seq", res.Message.Sequence()).Info("echo reply received")
		}
		upper = res.Reply

	case core.ProtocolTCP:
		res, err := d.tcp.Handle(seg, ip.Src, ip.Dst)
		if err == nil && !res.ChecksumValid {
			_ = d.checksumMismatch("tcp", res.Header.Checksum)
		} else if errors.Is(err, core.ErrBadChecksum) {
			metrics.ChecksumErrorsTotal.WithLabelValues("tcp").Inc()
		}
		if err != nil {
			return o, err
		}
		if res.Retransmit && d.log.IsDebugEnabled() {
			d.log.WithField("src", ip.Src).Debugf("retransmitted syn %s", res.Header)
		}
		upper = res.Reply

	default:
		// UDP and IGMP are recognized and deliberately left unanswered.
		d.inform(d.log.WithField("protocol", o.Protocol).WithField("src", ip.Src).WithField("dst", ip.Dst),
			"datagram ignored")
		return o, nil
	}

	if upper == nil {
		return o, nil
	}
	return o, d.layoutIPv4(&o, eth, payload, upper, out)
}

// checkUnicast rejects destinations that cannot become the source of a
// reply: limited broadcast, multicast, unspecified, and any address other
// than the local one carried in a link-layer broadcast.
func (d *Dispatcher) checkUnicast(eth ethernet.Header, ip ipv4.Header) error {
	switch {
	case ip.Dst == limitedBroadcast, ip.Dst.IsMulticast(), ip.Dst.IsUnspecified():
		return fmt.Errorf("ipv4 %s: %w", ip.Dst, errNotUnicast)
	case eth.IsBroadcast() && ip.Dst != d.local.IPv4:
		return fmt.Errorf("ipv4 %s in a link-layer broadcast: %w", ip.Dst, errNotUnicast)
	}
	return nil
}

// layoutIPv4 writes Ethernet header, IPv4 header and upper-layer payload
// contiguously into out.
func (d *Dispatcher) layoutIPv4(o *Outcome, eth ethernet.Header, inIP core.View, upper, out []byte) error {
	hdr, err := ipv4.BuildReplyHeader(inIP, true)
	if err != nil {
		return err
	}
	total := ipv4.HeaderLen + len(upper)
	if !d.cfg.PreserveReplyLength {
		if err := ipv4.SetTotalLen(hdr[:], total); err != nil {
			return err
		}
	}

	n := ethernet.HeaderLen + total
	if len(out) < n {
		return fmt.Errorf("%s reply needs %d bytes, have %d: %w", o.Protocol, n, len(out), core.ErrBufferTooSmall)
	}
	eh := ethernet.BuildReply(eth, d.local.MAC)
	copy(out, eh[:])
	copy(out[ethernet.HeaderLen:], hdr[:])
	copy(out[ethernet.HeaderLen+ipv4.HeaderLen:], upper)
	o.Send, o.N = true, n
	return nil
}

// checksumMismatch reports a failed header checksum. It returns an error
// only when such input must be dropped.
func (d *Dispatcher) checksumMismatch(proto string, sum uint16) error {
	metrics.ChecksumErrorsTotal.WithLabelValues(proto).Inc()
	if d.cfg.DropBadChecksum {
		return fmt.Errorf("%s checksum 0x%04x: %w", proto, sum, core.ErrBadChecksum)
	}
	d.log.WithField("protocol", proto).Warnf("checksum 0x%04x does not verify, answering anyway", sum)
	return nil
}
