package edu

import (
	"context"
	"math"
	"time"
)

// MotionState is the commanded drive state the control loop re-asserts.
// Speed and raw motor power are mutually exclusive: setting one zeroes
// the other.
type MotionState struct {
	Heading       int // degrees, 0-359
	Speed         int // -255..255, API scale before any motor remapping
	RawLeft       int // -255..255
	RawRight      int // -255..255
	Stabilization bool
}

// rawRestoreTimeout bounds the cleanup commands after a timed raw motor
// hold whose context was cancelled mid-way.
const rawRestoreTimeout = 2 * time.Second

// spinStepPause paces Spin while it waits for the next whole degree to
// come due.
const spinStepPause = 10 * time.Millisecond

// wrapHeading normalizes any angle to 0..359.
func wrapHeading(h int) int {
	h %= 360
	if h < 0 {
		h += 360
	}
	return h
}

// clampPower bounds a speed or raw motor value to -255..255.
func clampPower(v int) int {
	if v > 255 {
		return 255
	}
	if v < -255 {
		return -255
	}
	return v
}

// sleepCtx pauses for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runControlLoop re-asserts the drive state every keep-alive interval.
// The firmware stops the motors when drive commands go quiet for about
// two seconds, so without this a long Roll would coast to a halt.
func (a *API) runControlLoop(ctx context.Context) {
	defer close(a.loopDone)
	ticker := time.NewTicker(a.opts.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.keepAliveTick(ctx)
		}
	}
}

// keepAliveTick holds the motion mutex across the re-issue so a user
// mutation and a tick never interleave on the wire.
func (a *API) keepAliveTick(ctx context.Context) {
	a.motionMu.Lock()
	defer a.motionMu.Unlock()

	var err error
	switch {
	case a.motion.Speed != 0:
		err = a.driveLocked(ctx)
	case a.motion.RawLeft != 0 || a.motion.RawRight != 0:
		err = a.toy.SetRawMotors(ctx, a.motion.RawLeft, a.motion.RawRight)
	default:
		return
	}
	if err != nil && ctx.Err() == nil {
		a.logger.WithField("error", err).Debug("Keep-alive re-assert failed")
	}
}

func (a *API) driveLocked(ctx context.Context) error {
	return a.toy.DriveWithHeading(ctx, a.motion.Speed, a.motion.Heading)
}

// Roll drives at speed along heading for duration, then stops. Negative
// speed rolls tail-first: the commanded heading flips 180° and the drive
// command carries the reverse flag.
func (a *API) Roll(ctx context.Context, heading, speed int, duration time.Duration) error {
	if err := a.guard(); err != nil {
		return err
	}

	a.motionMu.Lock()
	speed = clampPower(speed)
	heading = wrapHeading(heading)
	if speed < 0 {
		heading = wrapHeading(heading + 180)
	}
	a.motion.Speed = speed
	a.motion.Heading = heading
	a.motion.RawLeft, a.motion.RawRight = 0, 0
	err := a.driveLocked(ctx)
	a.motionMu.Unlock()
	if err != nil {
		return err
	}

	if err := sleepCtx(ctx, duration); err != nil {
		// Zero the commanded speed so the control loop stops re-asserting
		// it; the firmware coasts the motors out on its own.
		a.motionMu.Lock()
		a.motion.Speed = 0
		a.motionMu.Unlock()
		return err
	}
	return a.Stop(ctx)
}

// SetSpeed changes the commanded speed and keeps the heading; the device
// rolls until told otherwise. Zero stops without changing the aim.
func (a *API) SetSpeed(ctx context.Context, speed int) error {
	if err := a.guard(); err != nil {
		return err
	}
	a.motionMu.Lock()
	defer a.motionMu.Unlock()
	a.motion.Speed = clampPower(speed)
	a.motion.RawLeft, a.motion.RawRight = 0, 0
	return a.driveLocked(ctx)
}

// SetHeading re-aims the device. At speed zero this turns in place.
func (a *API) SetHeading(ctx context.Context, heading int) error {
	if err := a.guard(); err != nil {
		return err
	}
	a.motionMu.Lock()
	defer a.motionMu.Unlock()
	a.motion.Heading = wrapHeading(heading)
	return a.driveLocked(ctx)
}

// Stop zeroes the commanded speed and issues one final stop drive at the
// current heading.
func (a *API) Stop(ctx context.Context) error {
	if err := a.guard(); err != nil {
		return err
	}
	a.motionMu.Lock()
	defer a.motionMu.Unlock()
	a.motion.Speed = 0
	return a.driveLocked(ctx)
}

// ResetAim re-zeroes the device's heading frame at its current
// orientation. The commanded heading is left as-is.
func (a *API) ResetAim(ctx context.Context) error {
	if err := a.guard(); err != nil {
		return err
	}
	return a.toy.ResetYaw(ctx)
}

// Calibrate is an alias for ResetAim.
func (a *API) Calibrate(ctx context.Context) error {
	return a.ResetAim(ctx)
}

// SetStabilization toggles the IMU control loop. Droids keep theirs
// engaged internally, so for them only the tracked flag changes. Turning
// stabilization back on zeroes any raw motor power; the two cannot
// coexist.
func (a *API) SetStabilization(ctx context.Context, on bool) error {
	if err := a.guard(); err != nil {
		return err
	}
	a.motionMu.Lock()
	defer a.motionMu.Unlock()
	return a.applyStabilizationLocked(ctx, on)
}

func (a *API) applyStabilizationLocked(ctx context.Context, on bool) error {
	a.motion.Stabilization = on
	a.stabilized.Store(on)
	if on {
		a.motion.RawLeft, a.motion.RawRight = 0, 0
	}
	if !a.toy.Capability().HasStabilization {
		return nil
	}
	return a.toy.SetStabilization(ctx, on)
}

// RawMotor powers each tread directly for duration. Stabilization fights
// raw power, so it is switched off for the hold and restored afterwards,
// including on error and cancellation paths; the commanded speed is
// zeroed. Duration zero applies the power and returns, leaving the
// caller to restore stabilization.
func (a *API) RawMotor(ctx context.Context, left, right int, duration time.Duration) (err error) {
	if err := a.guard(); err != nil {
		return err
	}

	a.motionMu.Lock()
	wasStabilized := a.motion.Stabilization
	if wasStabilized {
		if serr := a.applyStabilizationLocked(ctx, false); serr != nil {
			a.motionMu.Unlock()
			return serr
		}
	}
	a.motion.RawLeft = clampPower(left)
	a.motion.RawRight = clampPower(right)
	a.motion.Speed = 0
	err = a.toy.SetRawMotors(ctx, a.motion.RawLeft, a.motion.RawRight)
	a.motionMu.Unlock()

	if duration <= 0 {
		// Continuous mode: the control loop keeps the power asserted.
		return err
	}

	defer func() {
		rerr := a.endRawHold(ctx, wasStabilized)
		if err == nil {
			err = rerr
		} else if rerr != nil {
			a.logger.WithField("error", rerr).Warn("Raw motor restore failed")
		}
	}()
	if err != nil {
		return err
	}
	return sleepCtx(ctx, duration)
}

// endRawHold cuts raw power and restores the stabilization flag saved at
// the start of a timed hold. It must reach the device even when the
// caller's context died mid-hold, so it falls back to a short detached
// deadline.
func (a *API) endRawHold(ctx context.Context, restoreStabilization bool) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), rawRestoreTimeout)
		defer cancel()
	}

	a.motionMu.Lock()
	defer a.motionMu.Unlock()
	var err error
	if restoreStabilization {
		err = a.applyStabilizationLocked(ctx, true)
	}
	a.motion.RawLeft, a.motion.RawRight = 0, 0
	if offErr := a.toy.SetRawMotors(ctx, 0, 0); err == nil {
		err = offErr
	}
	return err
}

// Spin turns in place through angle degrees (sign picks the direction)
// over at least duration. The whole turn runs under the motion mutex so
// a keep-alive tick cannot re-assert a stale heading mid-turn. Durations
// the firmware's turning rate cannot meet are stretched to the feasible
// minimum.
func (a *API) Spin(ctx context.Context, angle int, duration time.Duration) error {
	if err := a.guard(); err != nil {
		return err
	}
	if angle == 0 {
		return nil
	}

	target := angle
	if target < 0 {
		target = -target
	}
	floor := time.Duration(a.toy.Capability().TimePerRevolution * float64(target) / 360 * float64(time.Second))
	if duration < floor {
		duration = floor
	}

	start := time.Now()
	travelled := 0
	a.motionMu.Lock()
	defer a.motionMu.Unlock()
	for travelled < target {
		frac := float64(time.Since(start)) / float64(duration)
		if frac > 1 {
			frac = 1
		}
		delta := int(math.Round(frac*float64(target))) - travelled
		if delta == 0 {
			if err := sleepCtx(ctx, spinStepPause); err != nil {
				return err
			}
			continue
		}
		step := delta
		if angle < 0 {
			step = -delta
		}
		a.motion.Heading = wrapHeading(a.motion.Heading + step)
		if err := a.driveLocked(ctx); err != nil {
			return err
		}
		travelled += delta
	}
	return nil
}

// stopAllMotion zeroes both drive modes, ahead of an animation or stance
// script taking over the motors.
func (a *API) stopAllMotion(ctx context.Context) error {
	a.motionMu.Lock()
	defer a.motionMu.Unlock()
	var err error
	if a.motion.Speed != 0 {
		a.motion.Speed = 0
		err = a.driveLocked(ctx)
	}
	if a.motion.RawLeft != 0 || a.motion.RawRight != 0 {
		a.motion.RawLeft, a.motion.RawRight = 0, 0
		if offErr := a.toy.SetRawMotors(ctx, 0, 0); err == nil {
			err = offErr
		}
	}
	return err
}

// Motion returns a snapshot of the commanded drive state.
func (a *API) Motion() MotionState {
	a.motionMu.Lock()
	defer a.motionMu.Unlock()
	return a.motion
}

// Heading returns the commanded heading in degrees, 0-359.
func (a *API) Heading() int {
	a.motionMu.Lock()
	defer a.motionMu.Unlock()
	return a.motion.Heading
}

// Speed returns the commanded speed on the API scale, before any
// model-specific motor remapping.
func (a *API) Speed() int {
	a.motionMu.Lock()
	defer a.motionMu.Unlock()
	return a.motion.Speed
}
