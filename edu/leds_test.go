package edu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwj718/spherov2/internal/commands"
	"github.com/wwj718/spherov2/internal/packet"
	"github.com/wwj718/spherov2/toy"
)

func ledRef() *packet.Packet {
	return commands.SetAllLEDsWith16BitMask(0, nil)
}

func lastLED(t *testing.T, fake *fakeAdapter) *packet.Packet {
	t.Helper()
	writes := writesFor(fake, ledRef())
	require.NotEmpty(t, writes, "expected an LED frame on the wire")
	return writes[len(writes)-1]
}

func TestRGBClampsChannels(t *testing.T) {
	assert.Equal(t, Color{R: 255, G: 0, B: 128}, RGB(300, -5, 128))
}

func TestSetMainLEDFansOutToDroidChannels(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelR2D2, nil)

	require.NoError(t, a.SetMainLED(context.Background(), Color{R: 10, G: 20, B: 30}))

	// One frame covering front (bits 0-2) and back (bits 4-6) together.
	w := lastLED(t, fake)
	assert.Equal(t, commands.SetAllLEDsWith16BitMask(0x0077, []byte{10, 20, 30, 10, 20, 30}).Data, w.Data)

	for _, get := range []func() (Color, bool){a.MainLED, a.FrontLED, a.BackLED} {
		c, ok := get()
		assert.True(t, ok)
		assert.Equal(t, Color{R: 10, G: 20, B: 30}, c)
	}
}

func TestSetMainLEDUsesSingleChannelOnSpheros(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelMini, nil)

	require.NoError(t, a.SetMainLED(context.Background(), Color{R: 1, G: 2, B: 3}))

	w := lastLED(t, fake)
	assert.Equal(t, commands.SetAllLEDsWith16BitMask(0x0007, []byte{1, 2, 3}).Data, w.Data)

	_, ok := a.FrontLED()
	assert.False(t, ok, "spheros have no front channel to record")
}

func TestSetFrontLEDIsSilentWithoutChannel(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelMini, nil)

	before := len(writesFor(fake, ledRef()))
	require.NoError(t, a.SetFrontLED(context.Background(), Color{R: 9}))
	assert.Equal(t, before, len(writesFor(fake, ledRef())))
}

func TestBackLEDBrightnessPrefersAimChannel(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelMini, nil)

	require.NoError(t, a.SetBackLEDBrightness(context.Background(), 200))

	w := lastLED(t, fake)
	assert.Equal(t, commands.SetAllLEDsWith16BitMask(0x0008, []byte{200}).Data, w.Data)

	c, ok := a.BackLED()
	assert.True(t, ok)
	assert.Equal(t, Color{B: 200}, c)
}

func TestBackLEDBrightnessFallsBackToBlueOnRGBBack(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelR2D2, nil)

	require.NoError(t, a.SetBackLEDBrightness(context.Background(), 200))

	w := lastLED(t, fake)
	assert.Equal(t, commands.SetAllLEDsWith16BitMask(0x0070, []byte{0, 0, 200}).Data, w.Data)
}

func TestDomeLEDsScaleToWireByte(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelBB9E, nil)
	ctx := context.Background()

	require.NoError(t, a.SetDomeLEDs(ctx, 15))
	assert.Equal(t, commands.SetAllLEDsWith16BitMask(0x0010, []byte{255}).Data, lastLED(t, fake).Data)

	require.NoError(t, a.SetDomeLEDs(ctx, 8))
	assert.Equal(t, commands.SetAllLEDsWith16BitMask(0x0010, []byte{136}).Data, lastLED(t, fake).Data)

	v, ok := a.DomeLEDs()
	assert.True(t, ok)
	assert.Equal(t, uint8(8), v, "the getter keeps the 0-15 scale")

	require.NoError(t, a.SetDomeLEDs(ctx, 22))
	assert.Equal(t, commands.SetAllLEDsWith16BitMask(0x0010, []byte{255}).Data, lastLED(t, fake).Data)
}

func TestDomeLEDsIgnoredWithoutDome(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelMini, nil)

	before := len(writesFor(fake, ledRef()))
	require.NoError(t, a.SetDomeLEDs(context.Background(), 10))
	assert.Equal(t, before, len(writesFor(fake, ledRef())))
	_, ok := a.DomeLEDs()
	assert.False(t, ok)
}

func TestHoloProjectorAndLogicDisplayLEDs(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelR2D2, nil)
	ctx := context.Background()

	require.NoError(t, a.SetHoloProjectorLED(ctx, 300))
	assert.Equal(t, commands.SetAllLEDsWith16BitMask(0x0080, []byte{255}).Data, lastLED(t, fake).Data)

	require.NoError(t, a.SetLogicDisplayLEDs(ctx, 77))
	assert.Equal(t, commands.SetAllLEDsWith16BitMask(0x0008, []byte{77}).Data, lastLED(t, fake).Data)

	holo, ok := a.HoloProjectorLED()
	require.True(t, ok)
	assert.Equal(t, uint8(255), holo)
	logic, ok := a.LogicDisplayLEDs()
	require.True(t, ok)
	assert.Equal(t, uint8(77), logic)
}

func TestFadeSweepsMainLED(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelMini, nil)
	ctx := context.Background()

	// Zero duration degenerates to a single jump to the target.
	before := len(writesFor(fake, ledRef()))
	require.NoError(t, a.Fade(ctx, Color{}, Color{R: 50}, 0))
	writes := writesFor(fake, ledRef())
	require.Len(t, writes, before+1)
	assert.Equal(t, []byte{50, 0, 0}, writes[before].Data[2:])

	before = len(writes)
	require.NoError(t, a.Fade(ctx, Color{}, Color{R: 255, G: 255, B: 255}, 60*time.Millisecond))
	writes = writesFor(fake, ledRef())
	require.Greater(t, len(writes), before+1, "a timed fade interpolates through frames")
	assert.Equal(t, []byte{255, 255, 255}, writes[len(writes)-1].Data[2:], "the final frame is exactly the target")

	c, ok := a.MainLED()
	require.True(t, ok)
	assert.Equal(t, Color{R: 255, G: 255, B: 255}, c)
}

func TestStrobeBlinksAndEndsLit(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelMini, nil)

	before := len(writesFor(fake, ledRef()))
	require.NoError(t, a.Strobe(context.Background(), Color{G: 99}, time.Millisecond, 3))

	writes := writesFor(fake, ledRef())[before:]
	require.Len(t, writes, 6)
	for i, w := range writes {
		want := []byte{0, 0, 0}
		if i%2 == 1 {
			want = []byte{0, 99, 0}
		}
		assert.Equal(t, want, w.Data[2:], "frame %d", i)
	}

	c, ok := a.MainLED()
	require.True(t, ok)
	assert.Equal(t, Color{G: 99}, c)
}
