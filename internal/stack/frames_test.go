package stack

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tapstack/internal/config"
	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/log"
)

var (
	localMAC = core.MAC{0xbe, 0xe9, 0x7d, 0x63, 0x31, 0xbc}
	localIP  = netip.MustParseAddr("10.0.0.2")
	peerMAC  = core.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	peerIP   = netip.MustParseAddr("10.0.0.1")
	otherIP  = netip.MustParseAddr("10.0.0.3")
)

func quietLogger(t *testing.T) log.Logger {
	t.Helper()
	l, err := log.New(config.LogConfig{Level: "debug"})
	require.NoError(t, err)
	return l
}

func newTestDispatcher(t *testing.T, mutate func(*Config)) *Dispatcher {
	t.Helper()
	cfg := Config{Identity: core.Identity{MAC: localMAC, IPv4: localIP}, Window: 4096, TrackHandshakes: true}
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := NewDispatcher(cfg, quietLogger(t))
	require.NoError(t, err)
	return d
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return append([]byte(nil), buf.Bytes()...)
}

func hw(m core.MAC) net.HardwareAddr { return net.HardwareAddr(m[:]) }

func ip4(a netip.Addr) net.IP { return net.IP(a.AsSlice()) }

func ethTo(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: hw(peerMAC), DstMAC: hw(localMAC), EthernetType: t}
}

func arpRequest(t *testing.T, target netip.Addr) []byte {
	eth := &layers.Ethernet{SrcMAC: hw(peerMAC), DstMAC: hw(core.BroadcastMAC), EthernetType: layers.EthernetTypeARP}
	a := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   hw(peerMAC),
		SourceProtAddress: ip4(peerIP),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    ip4(target),
	}
	return serialize(t, eth, a)
}

func ipTo(dst netip.Addr, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Id:       0x41e0,
		Flags:    layers.IPv4DontFragment,
		Protocol: proto,
		SrcIP:    ip4(peerIP),
		DstIP:    ip4(dst),
	}
}

func echoRequest(t *testing.T, dst netip.Addr, payload []byte) []byte {
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 0x1234, Seq: 1}
	return serialize(t, ethTo(layers.EthernetTypeIPv4), ipTo(dst, layers.IPProtocolICMPv4), icmp, gopacket.Payload(payload))
}

func tcpSegment(t *testing.T, seg *layers.TCP) []byte {
	ip := ipTo(localIP, layers.IPProtocolTCP)
	require.NoError(t, seg.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethTo(layers.EthernetTypeIPv4), ip, seg)
}

func tcpSyn(t *testing.T, seq uint32) []byte {
	return tcpSegment(t, &layers.TCP{SrcPort: 40000, DstPort: 80, Seq: seq, SYN: true, Window: 1024})
}
