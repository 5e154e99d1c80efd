package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAssembler() (*Assembler, *[]*Packet, *[]error) {
	packets := &[]*Packet{}
	errs := &[]error{}
	a := NewAssembler(
		func(p *Packet) { *packets = append(*packets, p) },
		func(err error) { *errs = append(*errs, err) },
		nil,
	)
	return a, packets, errs
}

func encodeSeq(seq byte) []byte {
	p := New(0x13, 0x0D)
	p.Sequence = seq
	return p.Encode()
}

func TestAssemblerSingleFrame(t *testing.T) {
	a, packets, errs := newTestAssembler()

	a.Write(encodeSeq(1))

	require.Len(t, *packets, 1)
	assert.Equal(t, byte(1), (*packets)[0].Sequence)
	assert.Empty(t, *errs)
}

func TestAssemblerFrameSplitAcrossNotifications(t *testing.T) {
	a, packets, _ := newTestAssembler()
	frame := encodeSeq(7)

	// Deliver one byte at a time, as a worst-case fragmentation.
	for _, b := range frame {
		a.Write([]byte{b})
	}

	require.Len(t, *packets, 1)
	assert.Equal(t, byte(7), (*packets)[0].Sequence)
}

func TestAssemblerCoalescedFrames(t *testing.T) {
	a, packets, errs := newTestAssembler()

	combined := append(encodeSeq(1), encodeSeq(2)...)
	combined = append(combined, encodeSeq(3)...)
	a.Write(combined)

	require.Len(t, *packets, 3)
	for i, p := range *packets {
		assert.Equal(t, byte(i+1), p.Sequence, "frames MUST arrive in order")
	}
	assert.Empty(t, *errs)
}

func TestAssemblerDiscardsGarbageBeforeStart(t *testing.T) {
	a, packets, errs := newTestAssembler()

	data := append([]byte{0x00, 0x42, 0xFF}, encodeSeq(9)...)
	a.Write(data)

	require.Len(t, *packets, 1)
	assert.Equal(t, byte(9), (*packets)[0].Sequence)
	assert.Empty(t, *errs, "leading garbage MUST be skipped silently")
}

func TestAssemblerReportsCorruptFrameAndRecovers(t *testing.T) {
	a, packets, errs := newTestAssembler()

	bad := encodeSeq(1)
	bad[len(bad)-2] ^= 0xFF // corrupt the checksum
	a.Write(bad)
	a.Write(encodeSeq(2))

	require.Len(t, *errs, 1)
	assert.ErrorIs(t, (*errs)[0], ErrBadChecksum)
	require.Len(t, *packets, 1, "assembler MUST resynchronize after a corrupt frame")
	assert.Equal(t, byte(2), (*packets)[0].Sequence)
}

func TestAssemblerSplitMidEscape(t *testing.T) {
	a, packets, _ := newTestAssembler()

	p := New(0x18, 0x02, 0xAB, 0x8D)
	p.Sequence = 4
	frame := p.Encode()

	// Split in the middle so escape pairs straddle the boundary.
	mid := len(frame) / 2
	a.Write(frame[:mid])
	require.Empty(t, *packets, "partial frame MUST not produce a packet")
	a.Write(frame[mid:])

	require.Len(t, *packets, 1)
	assert.Equal(t, []byte{0xAB, 0x8D}, (*packets)[0].Data)
}

func TestAssemblerRunawayFrameResets(t *testing.T) {
	a, packets, errs := newTestAssembler()

	// Start delimiter followed by endless non-delimiter bytes.
	junk := make([]byte, maxFrameSize+8)
	junk[0] = StartOfPacket
	for i := 1; i < len(junk); i++ {
		junk[i] = 0x11
	}
	a.Write(junk)
	a.Write(encodeSeq(5))

	require.Len(t, *errs, 1)
	assert.ErrorIs(t, (*errs)[0], ErrFrameTooLong)
	require.Len(t, *packets, 1)
	assert.Equal(t, byte(5), (*packets)[0].Sequence)
}
