package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tapstack/internal/core"
)

func TestOptionsLen(t *testing.T) {
	for off := uint8(0); off < 16; off++ {
		n, err := OptionsLen(off)
		if off < 5 {
			assert.ErrorIs(t, err, core.ErrMalformed, "offset %d", off)
			continue
		}
		require.NoError(t, err, "offset %d", off)
		assert.Equal(t, int(off)*4-20, n)
		assert.GreaterOrEqual(t, n, 0)
		assert.LessOrEqual(t, n, MaxOptionsLen)
	}
	_, err := OptionsLen(16)
	assert.ErrorIs(t, err, core.ErrMalformed)
}

func TestDecodeTCPHeader(t *testing.T) {
	data := []byte{
		0x9c, 0x40, // Src Port: 40000
		0x00, 0x50, // Dst Port: 80
		0x00, 0x00, 0x00, 0x64, // Seq: 100
		0x00, 0x00, 0x00, 0x00, // Ack: 0
		0x61, 0x02, // Data Offset 6, NS set, SYN
		0x04, 0x00, // Window: 1024
		0x12, 0x34, // Checksum
		0x00, 0x07, // Urgent
		0x02, 0x04, 0x05, 0xb4, // MSS 1460
		0xde, 0xad, // payload
	}

	h, err := Decode(core.NewView(data))
	require.NoError(t, err)

	assert.Equal(t, uint16(40000), h.SrcPort)
	assert.Equal(t, uint16(80), h.DstPort)
	assert.Equal(t, uint32(100), h.Seq)
	assert.Equal(t, uint32(0), h.Ack)
	assert.Equal(t, uint8(6), h.DataOffset)
	assert.Equal(t, 24, h.HeaderLen())
	assert.Equal(t, uint8(0), h.Reserved)
	assert.Equal(t, FlagNS|FlagSYN, h.Flags)
	assert.Equal(t, uint16(1024), h.Window)
	assert.Equal(t, uint16(0x1234), h.Checksum)
	assert.Equal(t, uint16(7), h.Urgent)
	assert.Equal(t, []byte{0x02, 0x04, 0x05, 0xb4}, h.Options.Bytes())
}

func TestDecodeReservedBits(t *testing.T) {
	data := make([]byte, 20)
	data[12] = 0x5E // offset 5, reserved 0b111, NS clear
	data[13] = 0x10 // ACK
	h, err := Decode(core.NewView(data))
	require.NoError(t, err)
	assert.Equal(t, uint8(7), h.Reserved)
	assert.Equal(t, FlagACK, h.Flags)
}

func TestDecodeTCPErrors(t *testing.T) {
	short := make([]byte, 19)
	_, err := Decode(core.NewView(short))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)

	lowOffset := make([]byte, 20)
	lowOffset[12] = 0x40
	_, err = Decode(core.NewView(lowOffset))
	assert.ErrorIs(t, err, core.ErrMalformed)

	truncated := make([]byte, 30)
	truncated[12] = 0xF0 // 60-byte header
	_, err = Decode(core.NewView(truncated))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)
}

func TestFlags(t *testing.T) {
	assert.True(t, FlagSYN.IsPureSYN())
	assert.False(t, (FlagSYN | FlagACK).IsPureSYN())
	assert.False(t, (FlagSYN | FlagNS).IsPureSYN())
	assert.False(t, Flags(0).IsPureSYN())

	f := FlagSYN | FlagACK
	assert.True(t, f.HasAll(FlagSYN|FlagACK))
	assert.False(t, f.HasAll(FlagSYN|FlagFIN))
	assert.True(t, f.HasAny(FlagFIN|FlagACK))

	assert.Equal(t, "[SYN,ACK]", f.String())
	assert.Equal(t, "[FIN,NS]", (FlagFIN | FlagNS).String())
	assert.Equal(t, "[]", Flags(0).String())
}

func TestPutRoundTrip(t *testing.T) {
	h := Header{
		SrcPort:    443,
		DstPort:    51000,
		Seq:        0xdeadbeef,
		Ack:        42,
		DataOffset: 10,
		Reserved:   0,
		Flags:      FlagSYN | FlagACK | FlagECE,
		Window:     8192,
		Checksum:   0xabcd,
	}
	buf := make([]byte, 40)
	for i := range buf {
		buf[i] = 0xff
	}
	n, err := h.Put(buf)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	assert.Equal(t, make([]byte, 20), buf[20:], "option space must be zeroed")

	got, err := Decode(core.NewView(buf))
	require.NoError(t, err)
	h.Options = got.Options
	assert.Equal(t, h, got)

	_, err = h.Put(make([]byte, 39))
	assert.ErrorIs(t, err, core.ErrBufferTooSmall)
}
