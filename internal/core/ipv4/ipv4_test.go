package ipv4

import (
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gvisor.dev/gvisor/pkg/tcpip/header"

	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/core/checksum"
)

// Echo request header 10.0.0.4 -> 10.0.0.5 with a valid checksum.
var sampleHeader = []byte{
	0x45,       // Version 4, IHL 5
	0x00,       // DSCP, ECN
	0x00, 0x54, // Total Length: 84
	0x41, 0xe0, // Identification
	0x40, 0x00, // Flags: DF
	0x40,       // TTL: 64
	0x01,       // Protocol: ICMP
	0xe4, 0xc0, // Checksum
	10, 0, 0, 4, // Src IP
	10, 0, 0, 5, // Dst IP
}

func TestDecodeIPv4Basic(t *testing.T) {
	h, err := Decode(core.NewView(sampleHeader))
	require.NoError(t, err)

	assert.Equal(t, uint8(4), h.Version)
	assert.Equal(t, uint8(5), h.IHL)
	assert.Equal(t, 20, h.HeaderLen())
	assert.Equal(t, uint16(84), h.TotalLen)
	assert.Equal(t, 64, h.PayloadLen())
	assert.Equal(t, uint16(0x41e0), h.ID)
	assert.Equal(t, uint8(FlagDontFragment), h.Flags)
	assert.Equal(t, uint16(0), h.FragOffset)
	assert.False(t, h.IsFragment())
	assert.Equal(t, uint8(64), h.TTL)
	assert.Equal(t, core.ProtocolICMP, h.Protocol)
	assert.Equal(t, uint16(0xe4c0), h.Checksum)
	assert.Equal(t, netip.MustParseAddr("10.0.0.4"), h.Src)
	assert.Equal(t, netip.MustParseAddr("10.0.0.5"), h.Dst)
	assert.True(t, ChecksumValid(core.NewView(sampleHeader), h))
}

func TestDecodeDSCPAndECN(t *testing.T) {
	data := append([]byte(nil), sampleHeader...)
	data[1] = 0xB9 // DSCP 46 (EF), ECN 1
	h, err := Decode(core.NewView(data))
	require.NoError(t, err)
	assert.Equal(t, uint8(46), h.DSCP)
	assert.Equal(t, uint8(1), h.ECN)
}

func TestDecodeFragmentFields(t *testing.T) {
	data := append([]byte(nil), sampleHeader...)
	data[6], data[7] = 0x20, 0x10 // MF, offset 16
	h, err := Decode(core.NewView(data))
	require.NoError(t, err)
	assert.Equal(t, uint8(FlagMoreFragments), h.Flags)
	assert.Equal(t, uint16(16), h.FragOffset)
	assert.True(t, h.IsFragment())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"too short", func(b []byte) []byte { return b[:19] }, core.ErrPacketTooShort},
		{"version 6", func(b []byte) []byte { b[0] = 0x65; return b }, core.ErrMalformed},
		{"ihl below minimum", func(b []byte) []byte { b[0] = 0x44; return b }, core.ErrMalformed},
		{"options beyond view", func(b []byte) []byte { b[0] = 0x46; return b }, core.ErrPacketTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), sampleHeader...))
			_, err := Decode(core.NewView(data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestProtocolOf(t *testing.T) {
	for _, p := range []core.IPProtocol{core.ProtocolICMP, core.ProtocolIGMP, core.ProtocolTCP, core.ProtocolUDP} {
		got, ok := ProtocolOf(Header{Protocol: p})
		assert.True(t, ok, "protocol %v", p)
		assert.Equal(t, p, got)
	}
	_, ok := ProtocolOf(Header{Protocol: 47}) // GRE
	assert.False(t, ok)
}

func TestBuildReplyHeaderRoundTrip(t *testing.T) {
	orig, err := Decode(core.NewView(sampleHeader))
	require.NoError(t, err)

	out, err := BuildReplyHeader(core.NewView(sampleHeader), true)
	require.NoError(t, err)

	reply, err := Decode(core.NewView(out[:]))
	require.NoError(t, err)

	assert.Equal(t, orig.Src, reply.Dst)
	assert.Equal(t, orig.Dst, reply.Src)
	assert.Equal(t, uint16(0), checksum.Sum(out[:]), "recomputed checksum must verify")

	// Everything else is preserved.
	reply.Src, reply.Dst = orig.Src, orig.Dst
	reply.Checksum = orig.Checksum
	assert.Equal(t, orig, reply)

	assert.True(t, header.IPv4(out[:]).IsChecksumValid())
}

func TestBuildReplyHeaderNoFlip(t *testing.T) {
	out, err := BuildReplyHeader(core.NewView(sampleHeader), false)
	require.NoError(t, err)
	assert.Equal(t, sampleHeader, out[:])
}

func TestBuildReplyHeaderNoFlipRecomputesChecksum(t *testing.T) {
	data := append([]byte(nil), sampleHeader...)
	data[10], data[11] = 0xde, 0xad

	out, err := BuildReplyHeader(core.NewView(data), false)
	require.NoError(t, err)
	assert.Equal(t, sampleHeader, out[:], "only the checksum is rewritten")
	assert.True(t, header.IPv4(out[:]).IsChecksumValid())
}

func TestBuildReplyHeaderDropsOptions(t *testing.T) {
	data := make([]byte, 24)
	copy(data, sampleHeader)
	data[0] = 0x46

	out, err := BuildReplyHeader(core.NewView(data), false)
	require.NoError(t, err)
	assert.Equal(t, byte(0x45), out[0])
	assert.Equal(t, uint16(0), checksum.Sum(out[:]))
}

func TestBuildReplyHeaderTooShort(t *testing.T) {
	_, err := BuildReplyHeader(core.NewView(sampleHeader[:12]), true)
	assert.ErrorIs(t, err, core.ErrPacketTooShort)
}

func TestSetTotalLen(t *testing.T) {
	hdr := append([]byte(nil), sampleHeader...)
	require.NoError(t, SetTotalLen(hdr, 60))

	h, err := Decode(core.NewView(hdr))
	require.NoError(t, err)
	assert.Equal(t, uint16(60), h.TotalLen)
	assert.Equal(t, uint16(0), checksum.Sum(hdr))

	assert.ErrorIs(t, SetTotalLen(hdr, 10), core.ErrMalformed)
	assert.ErrorIs(t, SetTotalLen(hdr[:10], 60), core.ErrBufferTooSmall)
}

func TestPutAgreesWithGopacket(t *testing.T) {
	h := Header{
		Version:  4,
		IHL:      5,
		DSCP:     10,
		TotalLen: 40,
		ID:       0xbeef,
		Flags:    FlagDontFragment,
		TTL:      63,
		Protocol: core.ProtocolTCP,
		Src:      netip.MustParseAddr("192.168.1.1"),
		Dst:      netip.MustParseAddr("192.168.1.2"),
	}
	buf := make([]byte, 40)
	require.NoError(t, h.Put(buf))
	SetChecksum(buf)

	pkt := gopacket.NewPacket(buf, layers.LayerTypeIPv4, gopacket.Lazy)
	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	assert.Equal(t, uint8(5), ip.IHL)
	assert.Equal(t, uint8(10<<2), ip.TOS)
	assert.Equal(t, uint16(0xbeef), ip.Id)
	assert.Equal(t, layers.IPv4DontFragment, ip.Flags)
	assert.Equal(t, uint8(63), ip.TTL)
	assert.Equal(t, layers.IPProtocolTCP, ip.Protocol)
	assert.Equal(t, "192.168.1.1", ip.SrcIP.String())
	assert.Equal(t, "192.168.1.2", ip.DstIP.String())
}
