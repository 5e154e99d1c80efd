package toy

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wwj718/spherov2/internal/commands"
)

// Ping echoes data through the device's API shell.
func (t *Toy) Ping(ctx context.Context, data []byte) ([]byte, error) {
	resp, err := t.Execute(ctx, commands.Ping(data))
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Wake brings the device out of soft sleep.
func (t *Toy) Wake(ctx context.Context) error {
	_, err := t.Execute(ctx, commands.Wake())
	return err
}

// Sleep puts the device into soft sleep. It keeps advertising and wakes
// on the next connection.
func (t *Toy) Sleep(ctx context.Context) error {
	_, err := t.Execute(ctx, commands.Sleep())
	return err
}

// DeepSleep powers the device down hard; it needs a charger (or a shake,
// model depending) to come back.
func (t *Toy) DeepSleep(ctx context.Context) error {
	_, err := t.Execute(ctx, commands.DeepSleep())
	return err
}

// DriveWithHeading starts driving at the given speed toward heading in
// degrees. Negative speed drives backward. The magnitude is clamped to
// 0-255 before the model's speed curve applies; heading is normalized
// into 0-359.
func (t *Toy) DriveWithHeading(ctx context.Context, speed int, heading int) error {
	var flags commands.DriveFlag
	if speed < 0 {
		flags |= commands.DriveFlagBackward
		speed = -speed
	}
	if speed > 255 {
		speed = 255
	}
	speed = t.caps.RemapSpeed(speed)
	if speed > 255 {
		speed = 255
	}
	_, err := t.Execute(ctx, commands.DriveWithHeading(byte(speed), normalizeHeading(heading), flags))
	return err
}

// SetRawMotors drives each tread directly, bypassing stabilization.
// Values run -255 to 255; sign selects direction, zero switches the
// motor off.
func (t *Toy) SetRawMotors(ctx context.Context, left, right int) error {
	lm, lv := rawMotor(left)
	rm, rv := rawMotor(right)
	_, err := t.Execute(ctx, commands.SetRawMotors(lm, lv, rm, rv))
	return err
}

func rawMotor(value int) (commands.RawMotorMode, byte) {
	switch {
	case value > 0:
		if value > 255 {
			value = 255
		}
		return commands.RawMotorForward, byte(value)
	case value < 0:
		if value < -255 {
			value = -255
		}
		return commands.RawMotorReverse, byte(-value)
	default:
		return commands.RawMotorOff, 0
	}
}

// ResetYaw re-zeroes the heading frame at the current orientation.
func (t *Toy) ResetYaw(ctx context.Context) error {
	_, err := t.Execute(ctx, commands.ResetYaw())
	return err
}

// SetStabilization toggles the IMU control loop. Disabling it is required
// before raw motor control behaves predictably.
func (t *Toy) SetStabilization(ctx context.Context, enabled bool) error {
	index := commands.StabilizationNone
	if enabled {
		index = commands.StabilizationFullControl
	}
	_, err := t.Execute(ctx, commands.SetStabilization(index))
	return err
}

// GetBatteryVoltage reads the battery voltage in volts.
func (t *Toy) GetBatteryVoltage(ctx context.Context) (float64, error) {
	resp, err := t.Execute(ctx, commands.GetBatteryVoltage())
	if err != nil {
		return 0, err
	}
	return float64(beUint(resp.Data)) / 100, nil
}

// GetBatteryState reads the device's coarse charge condition.
func (t *Toy) GetBatteryState(ctx context.Context) (BatteryState, error) {
	resp, err := t.Execute(ctx, commands.GetBatteryState())
	if err != nil {
		return 0, err
	}
	if len(resp.Data) < 1 {
		return 0, fmt.Errorf("battery state response carries no payload")
	}
	return BatteryState(resp.Data[0]), nil
}

// EnableBatteryStateChangedNotify turns unsolicited battery state
// notifications on or off.
func (t *Toy) EnableBatteryStateChangedNotify(ctx context.Context, enabled bool) error {
	_, err := t.Execute(ctx, commands.EnableBatteryStateChangedNotify(enabled))
	return err
}

// AddBatteryStateChangedListener registers fn for battery state change
// notifications. Enable them with EnableBatteryStateChangedNotify.
func (t *Toy) AddBatteryStateChangedListener(fn func(BatteryState)) ListenerID {
	return t.AddListener(KeyBatteryStateChanged, func(p *Packet) {
		if len(p.Data) < 1 {
			return
		}
		fn(BatteryState(p.Data[0]))
	})
}

// GetMainAppVersion reads the firmware version.
func (t *Toy) GetMainAppVersion(ctx context.Context) (AppVersion, error) {
	resp, err := t.Execute(ctx, commands.GetMainAppVersion())
	if err != nil {
		return AppVersion{}, err
	}
	return decodeAppVersion(resp.Data)
}

// GetBootloaderVersion reads the bootloader version.
func (t *Toy) GetBootloaderVersion(ctx context.Context) (AppVersion, error) {
	resp, err := t.Execute(ctx, commands.GetBootloaderVersion())
	if err != nil {
		return AppVersion{}, err
	}
	return decodeAppVersion(resp.Data)
}

// GetMacAddress reads the device's MAC address as reported by firmware.
func (t *Toy) GetMacAddress(ctx context.Context) (string, error) {
	resp, err := t.Execute(ctx, commands.GetMacAddress())
	if err != nil {
		return "", err
	}
	return string(resp.Data), nil
}

// GetStatsID reads the device's opaque statistics identifier.
func (t *Toy) GetStatsID(ctx context.Context) ([]byte, error) {
	resp, err := t.Execute(ctx, commands.GetStatsID())
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetThreeCharacterSku reads the three-character SKU code.
func (t *Toy) GetThreeCharacterSku(ctx context.Context) (string, error) {
	resp, err := t.Execute(ctx, commands.GetThreeCharacterSku())
	if err != nil {
		return "", err
	}
	return string(resp.Data), nil
}

// SetSensorStreamingMask enables streaming of the main sensor bank.
// interval is the reporting period in milliseconds, count the number of
// rows per report (0 streams forever), mask the bitwise OR of component
// masks from the model's sensor schema. Mask 0 stops streaming.
func (t *Toy) SetSensorStreamingMask(ctx context.Context, interval uint16, count byte, mask uint32) error {
	if t.caps.Sensors == nil {
		return fmt.Errorf("%w: sensor streaming on %s", ErrUnsupported, t.caps.Model)
	}
	_, err := t.Execute(ctx, commands.SetSensorStreamingMask(interval, count, mask))
	return err
}

// SetExtendedSensorStreamingMask enables streaming of the extended sensor
// bank (gyroscope, droid head angle). Rows carry extended values after
// the main bank's.
func (t *Toy) SetExtendedSensorStreamingMask(ctx context.Context, mask uint32) error {
	if t.caps.ExtendedSensors == nil {
		return fmt.Errorf("%w: extended sensor streaming on %s", ErrUnsupported, t.caps.Model)
	}
	_, err := t.Execute(ctx, commands.SetExtendedSensorStreamingMask(mask))
	return err
}

// AddSensorStreamingListener registers fn for streamed sensor rows, one
// decoded float per enabled component, in schema order. Map them back to
// named components with Capability.DecodeSensorRow.
func (t *Toy) AddSensorStreamingListener(fn func([]float64)) ListenerID {
	return t.AddListener(KeySensorStreamingData, func(p *Packet) {
		fn(decodeFloats(p.Data))
	})
}

// ResetLocatorXAndY re-zeroes the locator's dead-reckoned position.
func (t *Toy) ResetLocatorXAndY(ctx context.Context) error {
	_, err := t.Execute(ctx, commands.ResetLocatorXAndY())
	return err
}

// SetLocatorFlags configures locator coordinate rotation behavior.
func (t *Toy) SetLocatorFlags(ctx context.Context, flags bool) error {
	_, err := t.Execute(ctx, commands.SetLocatorFlags(flags))
	return err
}

// ConfigureCollisionDetection arms the firmware collision filter.
// Thresholds and speeds are raw accelerometer units per axis; deadTime
// suppresses repeat reports, in 10 ms steps.
func (t *Toy) ConfigureCollisionDetection(ctx context.Context, method CollisionMethod,
	xThreshold, yThreshold, xSpeed, ySpeed, deadTime byte) error {
	_, err := t.Execute(ctx, commands.ConfigureCollisionDetection(method,
		xThreshold, yThreshold, xSpeed, ySpeed, deadTime))
	return err
}

// AddCollisionListener registers fn for decoded collision notifications.
// Malformed reports are logged and dropped.
func (t *Toy) AddCollisionListener(fn func(CollisionData)) ListenerID {
	return t.AddListener(KeyCollisionDetected, func(p *Packet) {
		data, err := decodeCollision(p.Data)
		if err != nil {
			t.logger.WithField("error", err).Warn("Dropped malformed collision report")
			return
		}
		fn(data)
	})
}

// EnableGyroMaxNotify turns gyro saturation notifications on or off.
func (t *Toy) EnableGyroMaxNotify(ctx context.Context, enabled bool) error {
	_, err := t.Execute(ctx, commands.EnableGyroMaxNotify(enabled))
	return err
}

// AddGyroMaxListener registers fn for gyro saturation notifications. The
// argument is the axis flag byte reported by the firmware.
func (t *Toy) AddGyroMaxListener(fn func(axis byte)) ListenerID {
	return t.AddListener(KeyGyroMax, func(p *Packet) {
		var axis byte
		if len(p.Data) > 0 {
			axis = p.Data[0]
		}
		fn(axis)
	})
}

// SetAllLEDs addresses up to 16 LED slots in one command: bit i of mask
// selects slot i, and values carries one byte per set bit, low slot
// first. Slot layout is model specific; see Capability.LEDs.
func (t *Toy) SetAllLEDs(ctx context.Context, mask uint16, values []byte) error {
	if len(t.caps.LEDs) == 0 {
		return fmt.Errorf("%w: LEDs on %s", ErrUnsupported, t.caps.Model)
	}
	_, err := t.Execute(ctx, commands.SetAllLEDsWith16BitMask(mask, values))
	return err
}

// SetAudioVolume sets playback volume, 0-255.
func (t *Toy) SetAudioVolume(ctx context.Context, volume byte) error {
	if !t.caps.HasAudio {
		return fmt.Errorf("%w: audio on %s", ErrUnsupported, t.caps.Model)
	}
	_, err := t.Execute(ctx, commands.SetAudioVolume(volume))
	return err
}

// PlayAudioFile plays a built-in sound by ID.
func (t *Toy) PlayAudioFile(ctx context.Context, sound uint16, mode PlaybackMode) error {
	if !t.caps.HasAudio {
		return fmt.Errorf("%w: audio on %s", ErrUnsupported, t.caps.Model)
	}
	_, err := t.Execute(ctx, commands.PlayAudioFile(sound, mode))
	return err
}

// StartIdleLEDAnimation hands the LEDs back to the firmware's idle
// animation.
func (t *Toy) StartIdleLEDAnimation(ctx context.Context) error {
	_, err := t.Execute(ctx, commands.StartIdleLedAnimation())
	return err
}

// PlayAnimation triggers a scripted animation. Unknown IDs for the model
// are rejected before anything is sent. With wait set, PlayAnimation
// blocks until the device reports the animation complete.
func (t *Toy) PlayAnimation(ctx context.Context, anim Animation, wait bool) error {
	if !t.caps.HasAnimations {
		return fmt.Errorf("%w: animations on %s", ErrUnsupported, t.caps.Model)
	}
	if !t.caps.ValidAnimation(uint16(anim)) {
		return &InvalidArgumentError{What: "animation", Value: anim}
	}
	if _, err := t.Execute(ctx, commands.PlayAnimation(uint16(anim))); err != nil {
		return err
	}
	if !wait {
		return nil
	}
	_, err := t.WaitFor(ctx, KeyPlayAnimationComplete)
	return err
}

// StopAnimation aborts the running animation.
func (t *Toy) StopAnimation(ctx context.Context) error {
	if !t.caps.HasAnimations {
		return fmt.Errorf("%w: animations on %s", ErrUnsupported, t.caps.Model)
	}
	_, err := t.Execute(ctx, commands.StopAnimation())
	return err
}

// SetHeadPosition rotates a droid's head to the given angle in degrees.
func (t *Toy) SetHeadPosition(ctx context.Context, angle float32) error {
	if !t.caps.HasHead {
		return fmt.Errorf("%w: head position on %s", ErrUnsupported, t.caps.Model)
	}
	_, err := t.Execute(ctx, commands.SetHeadPosition(angle))
	return err
}

// PerformLegAction runs a scripted droid stance transition.
func (t *Toy) PerformLegAction(ctx context.Context, action LegAction) error {
	if !t.caps.HasLegs {
		return fmt.Errorf("%w: leg actions on %s", ErrUnsupported, t.caps.Model)
	}
	_, err := t.Execute(ctx, commands.PerformLegAction(action))
	return err
}

// SetLegPosition drives a droid's legs to an absolute position.
func (t *Toy) SetLegPosition(ctx context.Context, position float32) error {
	if !t.caps.HasLegs {
		return fmt.Errorf("%w: leg position on %s", ErrUnsupported, t.caps.Model)
	}
	_, err := t.Execute(ctx, commands.SetLegPosition(position))
	return err
}

// GetLegPosition reads the droid's current leg position.
func (t *Toy) GetLegPosition(ctx context.Context) (float32, error) {
	if !t.caps.HasLegs {
		return 0, fmt.Errorf("%w: leg position on %s", ErrUnsupported, t.caps.Model)
	}
	resp, err := t.Execute(ctx, commands.GetLegPosition())
	if err != nil {
		return 0, err
	}
	if len(resp.Data) < 4 {
		return 0, fmt.Errorf("leg position response too short: %d bytes", len(resp.Data))
	}
	return math.Float32frombits(binary.BigEndian.Uint32(resp.Data)), nil
}

// normalizeHeading wraps any heading into 0-359 degrees.
func normalizeHeading(heading int) uint16 {
	h := heading % 360
	if h < 0 {
		h += 360
	}
	return uint16(h)
}

// beUint folds a big-endian byte string of any length into an integer.
func beUint(data []byte) uint64 {
	var v uint64
	for _, b := range data {
		v = v<<8 | uint64(b)
	}
	return v
}
