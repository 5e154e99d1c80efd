package edu

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/wwj718/spherov2/toy"
)

// Color is an RGB LED color.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// RGB builds a Color from unbounded channel values, clamping each to
// 0-255.
func RGB(r, g, b int) Color {
	return Color{R: clampChannel(r), G: clampChannel(g), B: clampChannel(b)}
}

func clampChannel(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// fadeFrameInterval paces Fade's interpolation steps.
const fadeFrameInterval = 20 * time.Millisecond

// ledSlot is one bit of the 16-slot LED mask with its brightness byte.
type ledSlot struct {
	bit   uint8
	value byte
}

// appendColor adds the channel's r, g, b slots when the model carries the
// channel with an RGB layout.
func appendColor(caps *toy.Capability, slots []ledSlot, ch toy.LEDChannel, c Color) []ledSlot {
	bits := caps.LEDs[ch]
	if len(bits) != 3 {
		return slots
	}
	return append(slots,
		ledSlot{bit: bits[0], value: c.R},
		ledSlot{bit: bits[1], value: c.G},
		ledSlot{bit: bits[2], value: c.B},
	)
}

// appendLevel adds a single-slot brightness channel when present.
func appendLevel(caps *toy.Capability, slots []ledSlot, ch toy.LEDChannel, v byte) []ledSlot {
	bits := caps.LEDs[ch]
	if len(bits) != 1 {
		return slots
	}
	return append(slots, ledSlot{bit: bits[0], value: v})
}

// writeSlots issues one SetAllLEDs for the collected slots, low bit
// first. No slots means the channel does not exist on this model, a
// silent no-op.
func (a *API) writeSlots(ctx context.Context, slots []ledSlot) error {
	if len(slots) == 0 {
		return nil
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].bit < slots[j].bit })
	var mask uint16
	values := make([]byte, 0, len(slots))
	for _, s := range slots {
		mask |= 1 << s.bit
		values = append(values, s.value)
	}
	return a.toy.SetAllLEDs(ctx, mask, values)
}

func (a *API) recordColor(ch toy.LEDChannel, c Color) {
	a.ledMu.Lock()
	a.ledColors[ch] = c
	a.ledMu.Unlock()
}

func (a *API) recordLevel(ch toy.LEDChannel, v uint8) {
	a.ledMu.Lock()
	a.ledLevels[ch] = v
	a.ledMu.Unlock()
}

// SetMainLED colors the main body light. Models without a dedicated main
// channel fan the write out to the aliased channels (droid front and
// back, for example) in a single LED command.
func (a *API) SetMainLED(ctx context.Context, c Color) error {
	if err := a.guard(); err != nil {
		return err
	}
	caps := a.toy.Capability()
	channels := append([]toy.LEDChannel{toy.LEDMain}, caps.MainAliases...)
	var slots []ledSlot
	for _, ch := range channels {
		slots = appendColor(caps, slots, ch, c)
	}
	if len(slots) == 0 {
		return nil
	}
	if err := a.writeSlots(ctx, slots); err != nil {
		return err
	}

	a.ledMu.Lock()
	a.ledColors[toy.LEDMain] = c
	for _, ch := range caps.MainAliases {
		a.ledColors[ch] = c
	}
	a.ledMu.Unlock()
	return nil
}

// SetFrontLED colors the front channel on models that have one; silent
// no-op elsewhere.
func (a *API) SetFrontLED(ctx context.Context, c Color) error {
	return a.setChannelColor(ctx, toy.LEDFront, c)
}

// SetBackLED colors the rear RGB channel on models that have one (droids
// and BOLT); silent no-op elsewhere. Spheros carry a single-intensity
// aiming light instead, addressed with SetBackLEDBrightness.
func (a *API) SetBackLED(ctx context.Context, c Color) error {
	return a.setChannelColor(ctx, toy.LEDBack, c)
}

func (a *API) setChannelColor(ctx context.Context, ch toy.LEDChannel, c Color) error {
	if err := a.guard(); err != nil {
		return err
	}
	slots := appendColor(a.toy.Capability(), nil, ch, c)
	if len(slots) == 0 {
		return nil
	}
	if err := a.writeSlots(ctx, slots); err != nil {
		return err
	}
	a.recordColor(ch, c)
	return nil
}

// SetBackLEDBrightness drives the rear light as a plain intensity: the
// aiming LED where the model has one, otherwise blue on an RGB back
// channel. The recorded back color becomes (0, 0, b).
func (a *API) SetBackLEDBrightness(ctx context.Context, b int) error {
	if err := a.guard(); err != nil {
		return err
	}
	level := clampChannel(b)
	caps := a.toy.Capability()
	slots := appendLevel(caps, nil, toy.LEDAim, level)
	if len(slots) == 0 {
		slots = appendColor(caps, slots, toy.LEDBack, Color{B: level})
	}
	if len(slots) == 0 {
		return nil
	}
	if err := a.writeSlots(ctx, slots); err != nil {
		return err
	}
	a.recordColor(toy.LEDBack, Color{B: level})
	return nil
}

// SetDomeLEDs lights the BB-9E dome at an intensity of 0-15, scaled to
// the wire's byte range.
func (a *API) SetDomeLEDs(ctx context.Context, brightness int) error {
	if err := a.guard(); err != nil {
		return err
	}
	if brightness < 0 {
		brightness = 0
	}
	if brightness > 15 {
		brightness = 15
	}
	slots := appendLevel(a.toy.Capability(), nil, toy.LEDDome, byte(brightness*255/15))
	if len(slots) == 0 {
		return nil
	}
	if err := a.writeSlots(ctx, slots); err != nil {
		return err
	}
	a.recordLevel(toy.LEDDome, uint8(brightness))
	return nil
}

// SetHoloProjectorLED sets the droid holoprojector intensity, 0-255.
func (a *API) SetHoloProjectorLED(ctx context.Context, brightness int) error {
	return a.setChannelLevel(ctx, toy.LEDHoloProjector, clampChannel(brightness))
}

// SetLogicDisplayLEDs sets the droid logic display intensity, 0-255.
func (a *API) SetLogicDisplayLEDs(ctx context.Context, brightness int) error {
	return a.setChannelLevel(ctx, toy.LEDLogicDisplays, clampChannel(brightness))
}

func (a *API) setChannelLevel(ctx context.Context, ch toy.LEDChannel, level uint8) error {
	if err := a.guard(); err != nil {
		return err
	}
	slots := appendLevel(a.toy.Capability(), nil, ch, level)
	if len(slots) == 0 {
		return nil
	}
	if err := a.writeSlots(ctx, slots); err != nil {
		return err
	}
	a.recordLevel(ch, level)
	return nil
}

// MainLED returns the last color written to the main light. ok is false
// before the session's first write.
func (a *API) MainLED() (Color, bool) { return a.ledColor(toy.LEDMain) }

// FrontLED returns the last color written to the front channel.
func (a *API) FrontLED() (Color, bool) { return a.ledColor(toy.LEDFront) }

// BackLED returns the last color written to the rear light; brightness
// writes record as (0, 0, b).
func (a *API) BackLED() (Color, bool) { return a.ledColor(toy.LEDBack) }

// DomeLEDs returns the last dome intensity on its 0-15 scale.
func (a *API) DomeLEDs() (uint8, bool) { return a.ledLevel(toy.LEDDome) }

// HoloProjectorLED returns the last holoprojector intensity.
func (a *API) HoloProjectorLED() (uint8, bool) { return a.ledLevel(toy.LEDHoloProjector) }

// LogicDisplayLEDs returns the last logic display intensity.
func (a *API) LogicDisplayLEDs() (uint8, bool) { return a.ledLevel(toy.LEDLogicDisplays) }

func (a *API) ledColor(ch toy.LEDChannel) (Color, bool) {
	a.ledMu.Lock()
	defer a.ledMu.Unlock()
	c, ok := a.ledColors[ch]
	return c, ok
}

func (a *API) ledLevel(ch toy.LEDChannel) (uint8, bool) {
	a.ledMu.Lock()
	defer a.ledMu.Unlock()
	v, ok := a.ledLevels[ch]
	return v, ok
}

// Fade sweeps the main light from one color to another over duration,
// blocking until done. The final frame is exactly to.
func (a *API) Fade(ctx context.Context, from, to Color, duration time.Duration) error {
	if err := a.guard(); err != nil {
		return err
	}
	if duration <= 0 {
		return a.SetMainLED(ctx, to)
	}
	start := time.Now()
	for {
		frac := float64(time.Since(start)) / float64(duration)
		if frac >= 1 {
			break
		}
		if err := a.SetMainLED(ctx, blend(from, to, frac)); err != nil {
			return err
		}
		if err := sleepCtx(ctx, fadeFrameInterval); err != nil {
			return err
		}
	}
	return a.SetMainLED(ctx, to)
}

func blend(from, to Color, frac float64) Color {
	mix := func(f, t uint8) uint8 {
		return uint8(math.Round(float64(f)*(1-frac) + float64(t)*frac))
	}
	return Color{R: mix(from.R, to.R), G: mix(from.G, to.G), B: mix(from.B, to.B)}
}

// Strobe blinks the main light count times, holding each dark and lit
// phase for period. The light ends lit.
func (a *API) Strobe(ctx context.Context, c Color, period time.Duration, count int) error {
	if err := a.guard(); err != nil {
		return err
	}
	for i := 0; i < count*2; i++ {
		next := Color{}
		if i%2 == 1 {
			next = c
		}
		if err := a.SetMainLED(ctx, next); err != nil {
			return err
		}
		if err := sleepCtx(ctx, period); err != nil {
			return err
		}
	}
	return nil
}
