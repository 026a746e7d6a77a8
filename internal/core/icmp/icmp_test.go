package icmp

import (
	"encoding/binary"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/core/checksum"
)

// echoRequest builds an echo request with a valid checksum.
func echoRequest(id, seq uint16, payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	buf[0] = byte(TypeEchoRequest)
	binary.BigEndian.PutUint16(buf[4:6], id)
	binary.BigEndian.PutUint16(buf[6:8], seq)
	copy(buf[HeaderLen:], payload)
	binary.BigEndian.PutUint16(buf[2:4], checksum.Sum(buf))
	return buf
}

func TestDecode(t *testing.T) {
	data := []byte{
		0x08, 0x00, // Type: echo request, Code 0
		0x00, 0x00, // Checksum
		0x12, 0x34, // Identifier
		0x00, 0x01, // Sequence
		0xAA, 0xBB, // Payload
	}

	m, err := Decode(core.NewView(data))
	require.NoError(t, err)
	assert.Equal(t, TypeEchoRequest, m.Type)
	assert.Equal(t, uint16(0x1234), m.Identifier())
	assert.Equal(t, uint16(1), m.Sequence())
	assert.Equal(t, []byte{0xAA, 0xBB}, m.Payload)
	assert.Equal(t, 10, m.Len())
}

func TestDecodeTooShort(t *testing.T) {
	_, err := Decode(core.NewView([]byte{8, 0, 0, 0, 0, 0, 0}))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)
}

func TestEchoRequestProducesReply(t *testing.T) {
	req := echoRequest(0x1234, 1, []byte{0xAA, 0xBB})
	r := &Responder{}

	res, err := r.Handle(core.NewView(req))
	require.NoError(t, err)
	require.Equal(t, OutcomeEchoReplied, res.Outcome)
	assert.True(t, res.ChecksumValid)

	reply, err := Decode(core.NewView(res.Reply))
	require.NoError(t, err)
	assert.Equal(t, TypeEchoReply, reply.Type)
	assert.Equal(t, uint8(0), reply.Code)
	assert.Equal(t, uint16(0x1234), reply.Identifier())
	assert.Equal(t, uint16(1), reply.Sequence())
	assert.Equal(t, []byte{0xAA, 0xBB}, reply.Payload)
	assert.Equal(t, uint16(0), checksum.Sum(res.Reply), "reply checksum must verify")
}

func TestEchoReplyAgreesWithGopacket(t *testing.T) {
	req := echoRequest(7, 42, []byte("abcdefghijklmnopqrstuvwabcdefghi"))
	res, err := (&Responder{}).Handle(core.NewView(req))
	require.NoError(t, err)

	pkt := gopacket.NewPacket(res.Reply, layers.LayerTypeICMPv4, gopacket.Default)
	layer, ok := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	require.True(t, ok, "gopacket failed to decode reply: %v", pkt.ErrorLayer())
	assert.Equal(t, uint8(layers.ICMPv4TypeEchoReply), layer.TypeCode.Type())
	assert.Equal(t, uint16(7), layer.Id)
	assert.Equal(t, uint16(42), layer.Seq)
	assert.Equal(t, []byte("abcdefghijklmnopqrstuvwabcdefghi"), layer.Payload)
}

func TestEchoReplyIsObserved(t *testing.T) {
	msg := echoRequest(1, 1, nil)
	msg[0] = byte(TypeEchoReply)
	binary.BigEndian.PutUint16(msg[2:4], 0)
	binary.BigEndian.PutUint16(msg[2:4], checksum.Sum(msg))

	res, err := (&Responder{}).Handle(core.NewView(msg))
	require.NoError(t, err)
	assert.Equal(t, OutcomeEchoReplyObserved, res.Outcome)
	assert.Nil(t, res.Reply)
}

func TestOtherTypesAreUnsupported(t *testing.T) {
	for _, typ := range []Type{TypeDestinationUnreachable, TypeTimeExceeded, Type(42)} {
		t.Run(typ.String(), func(t *testing.T) {
			msg := make([]byte, HeaderLen)
			msg[0] = byte(typ)
			res, err := (&Responder{}).Handle(core.NewView(msg))
			assert.ErrorIs(t, err, core.ErrUnsupported)
			assert.Nil(t, res.Reply)
		})
	}
}

func TestBadChecksum(t *testing.T) {
	req := echoRequest(1, 1, []byte{1, 2, 3})
	req[2] ^= 0xff

	res, err := (&Responder{}).Handle(core.NewView(req))
	require.NoError(t, err, "lenient responder still answers")
	assert.False(t, res.ChecksumValid)
	assert.NotNil(t, res.Reply)
	assert.Equal(t, uint16(0), checksum.Sum(res.Reply))

	_, err = (&Responder{DropBadChecksum: true}).Handle(core.NewView(req))
	assert.ErrorIs(t, err, core.ErrBadChecksum)
}

func TestOddPayloadChecksum(t *testing.T) {
	req := echoRequest(3, 9, []byte{1, 2, 3})
	res, err := (&Responder{}).Handle(core.NewView(req))
	require.NoError(t, err)
	assert.Len(t, res.Reply, HeaderLen+3)
	assert.Equal(t, uint16(0), checksum.Sum(res.Reply))
}

func TestTypeNames(t *testing.T) {
	assert.True(t, TypeRouterSolicitation.Known())
	assert.False(t, Type(200).Known())
	assert.Equal(t, "echo-request", TypeEchoRequest.String())
	assert.Equal(t, "unknown(200)", Type(200).String())
}
