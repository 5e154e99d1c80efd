package toy

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwj718/spherov2/internal/commands"
	"github.com/wwj718/spherov2/internal/packet"
)

func lastWrite(t *testing.T, fake *fakeAdapter) *packet.Packet {
	t.Helper()
	writes := fake.written()
	require.NotEmpty(t, writes)
	return writes[len(writes)-1]
}

func TestDriveWithHeadingTranslatesSignedSpeed(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondOK()
	ty := newTestToy(t, ModelR2D2, fake, nil)

	require.NoError(t, ty.DriveWithHeading(context.Background(), -100, 450))

	w := lastWrite(t, fake)
	assert.Equal(t, commands.DeviceDriving, w.DeviceID)
	require.Len(t, w.Data, 4)
	assert.Equal(t, byte(100), w.Data[0], "magnitude on the wire")
	assert.Equal(t, uint16(90), binary.BigEndian.Uint16(w.Data[1:3]), "heading wrapped into 0-359")
	assert.Equal(t, byte(commands.DriveFlagBackward), w.Data[3])
}

func TestDriveWithHeadingClampsSpeed(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondOK()
	ty := newTestToy(t, ModelR2D2, fake, nil)

	require.NoError(t, ty.DriveWithHeading(context.Background(), 1000, -90))

	w := lastWrite(t, fake)
	require.Len(t, w.Data, 4)
	assert.Equal(t, byte(255), w.Data[0])
	assert.Equal(t, uint16(270), binary.BigEndian.Uint16(w.Data[1:3]))
	assert.Equal(t, byte(commands.DriveFlagForward), w.Data[3])
}

func TestDriveWithHeadingAppliesMiniSpeedCurve(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondOK()
	ty := newTestToy(t, ModelMini, fake, nil)

	require.NoError(t, ty.DriveWithHeading(context.Background(), 100, 0))
	// round((100+126)*2/3) lifts the value into the band the Mini's
	// motors actually respond to.
	assert.Equal(t, byte(151), lastWrite(t, fake).Data[0])

	require.NoError(t, ty.DriveWithHeading(context.Background(), 0, 0))
	assert.Equal(t, byte(0), lastWrite(t, fake).Data[0], "zero stays a full stop")

	require.NoError(t, ty.DriveWithHeading(context.Background(), -100, 0))
	w := lastWrite(t, fake)
	assert.Equal(t, byte(151), w.Data[0])
	assert.Equal(t, byte(commands.DriveFlagBackward), w.Data[3])
}

func TestSetRawMotorsSignSelectsMode(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondOK()
	ty := newTestToy(t, ModelR2D2, fake, nil)

	require.NoError(t, ty.SetRawMotors(context.Background(), -40, 300))

	w := lastWrite(t, fake)
	require.Len(t, w.Data, 4)
	assert.Equal(t, byte(commands.RawMotorReverse), w.Data[0])
	assert.Equal(t, byte(40), w.Data[1])
	assert.Equal(t, byte(commands.RawMotorForward), w.Data[2])
	assert.Equal(t, byte(255), w.Data[3])

	require.NoError(t, ty.SetRawMotors(context.Background(), 0, 0))
	w = lastWrite(t, fake)
	assert.Equal(t, byte(commands.RawMotorOff), w.Data[0])
	assert.Equal(t, byte(commands.RawMotorOff), w.Data[2])
}

func TestSetStabilizationMapsToIndex(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondOK()
	ty := newTestToy(t, ModelMini, fake, nil)

	require.NoError(t, ty.SetStabilization(context.Background(), false))
	assert.Equal(t, []byte{byte(commands.StabilizationNone)}, lastWrite(t, fake).Data)

	require.NoError(t, ty.SetStabilization(context.Background(), true))
	assert.Equal(t, []byte{byte(commands.StabilizationFullControl)}, lastWrite(t, fake).Data)
}

func TestGetBatteryVoltageScalesCentivolts(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondWith(func(p *packet.Packet) []byte {
		return []byte{0x01, 0x9F} // 415 -> 4.15 V
	})
	ty := newTestToy(t, ModelMini, fake, nil)

	v, err := ty.GetBatteryVoltage(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 4.15, v, 1e-9)
}

func TestGetBatteryState(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondWith(func(p *packet.Packet) []byte {
		return []byte{byte(BatteryStateCharging)}
	})
	ty := newTestToy(t, ModelMini, fake, nil)

	s, err := ty.GetBatteryState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatteryStateCharging, s)
}

func TestGetMainAppVersionDecodesTriple(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondWith(func(p *packet.Packet) []byte {
		return []byte{0x00, 0x05, 0x00, 0x01, 0x01, 0x55}
	})
	ty := newTestToy(t, ModelR2D2, fake, nil)

	v, err := ty.GetMainAppVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AppVersion{Major: 5, Minor: 1, Revision: 341}, v)
	assert.Equal(t, "5.1.341", v.String())
}

func TestGetMacAddressReturnsFirmwareString(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondWith(func(p *packet.Packet) []byte {
		return []byte("F3:2D:B4:4A:11:22")
	})
	ty := newTestToy(t, ModelMini, fake, nil)

	mac, err := ty.GetMacAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "F3:2D:B4:4A:11:22", mac)
}

func TestAnimatronicOperationsGatedByCapability(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondOK()
	ty := newTestToy(t, ModelMini, fake, nil)
	ctx := context.Background()

	assert.ErrorIs(t, ty.SetHeadPosition(ctx, 90), ErrUnsupported)
	assert.ErrorIs(t, ty.PerformLegAction(ctx, LegActionTwoLegs), ErrUnsupported)
	assert.ErrorIs(t, ty.SetLegPosition(ctx, 1), ErrUnsupported)
	assert.ErrorIs(t, ty.PlayAnimation(ctx, AnimEmoteYes, false), ErrUnsupported)
	assert.ErrorIs(t, ty.StopAnimation(ctx), ErrUnsupported)
	assert.ErrorIs(t, ty.PlayAudioFile(ctx, 1, PlaybackImmediately), ErrUnsupported)
	assert.ErrorIs(t, ty.SetAudioVolume(ctx, 128), ErrUnsupported)
	_, err := ty.GetLegPosition(ctx)
	assert.ErrorIs(t, err, ErrUnsupported)

	assert.Empty(t, fake.written(), "gated operations MUST NOT reach the wire")
}

func TestPlayAnimationRejectsUnknownID(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondOK()
	ty := newTestToy(t, ModelR2D2, fake, nil)

	err := ty.PlayAnimation(context.Background(), Animation(9999), false)
	var argErr *InvalidArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "animation", argErr.What)
	assert.Empty(t, fake.written())
}

func TestPlayAnimationWaitBlocksUntilComplete(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondOK()
	ty := newTestToy(t, ModelR2D2, fake, nil)

	done := make(chan error, 1)
	go func() {
		done <- ty.PlayAnimation(context.Background(), AnimWWMHappy, true)
	}()

	// The command is acknowledged synchronously; the wait for the
	// completion notification must remain parked.
	require.Eventually(t, func() bool { return ty.pendingWaiters() == 1 },
		time.Second, time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("PlayAnimation returned before completion: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	fake.notify(notifyFrame(KeyPlayAnimationComplete))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("PlayAnimation never observed completion")
	}
}

func TestHeadAndLegCommandsReachWireOnDroids(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondOK()
	ty := newTestToy(t, ModelR2D2, fake, nil)
	ctx := context.Background()

	require.NoError(t, ty.SetHeadPosition(ctx, 90))
	assert.Equal(t, commands.DeviceAnimatronic, lastWrite(t, fake).DeviceID)

	require.NoError(t, ty.PerformLegAction(ctx, LegActionThreeLegs))
	assert.Equal(t, []byte{byte(LegActionThreeLegs)}, lastWrite(t, fake).Data)
}

func TestGetLegPositionDecodesFloat(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondWith(func(p *packet.Packet) []byte {
		return []byte{0x3F, 0x80, 0x00, 0x00} // 1.0
	})
	ty := newTestToy(t, ModelR2D2, fake, nil)

	pos, err := ty.GetLegPosition(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pos, 1e-6)
}

func TestSetAllLEDsPassesMaskAndValues(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondOK()
	ty := newTestToy(t, ModelR2D2, fake, nil)

	require.NoError(t, ty.SetAllLEDs(context.Background(), 0x0007, []byte{10, 20, 30}))

	w := lastWrite(t, fake)
	assert.Equal(t, commands.DeviceUserIO, w.DeviceID)
	assert.Equal(t, []byte{0x00, 0x07, 10, 20, 30}, w.Data)
}

func TestSensorStreamingListenerDecodesRow(t *testing.T) {
	fake := newFakeAdapter()
	ty := newTestToy(t, ModelMini, fake, nil)

	var rows [][]float64
	ty.AddSensorStreamingListener(func(vals []float64) { rows = append(rows, vals) })

	payload := make([]byte, 8)
	binary.BigEndian.PutUint32(payload[0:4], 0x3FC00000) // 1.5
	binary.BigEndian.PutUint32(payload[4:8], 0xC0100000) // -2.25
	fake.notify(notifyFrame(KeySensorStreamingData, payload...))

	require.Len(t, rows, 1)
	require.Len(t, rows[0], 2)
	assert.InDelta(t, 1.5, rows[0][0], 1e-6)
	assert.InDelta(t, -2.25, rows[0][1], 1e-6)
}

func TestCollisionListenerDecodesNotification(t *testing.T) {
	fake := newFakeAdapter()
	ty := newTestToy(t, ModelMini, fake, nil)

	var got []CollisionData
	ty.AddCollisionListener(func(c CollisionData) { got = append(got, c) })

	payload := make([]byte, collisionDataLen)
	binary.BigEndian.PutUint16(payload[0:2], 4096) // 1.0 g
	binary.BigEndian.PutUint16(payload[2:4], 2048) // 0.5 g
	binary.BigEndian.PutUint16(payload[4:6], 8192) // 2.0 g
	payload[6] = 0x01                              // x axis
	binary.BigEndian.PutUint16(payload[7:9], 11)
	binary.BigEndian.PutUint16(payload[9:11], 22)
	binary.BigEndian.PutUint16(payload[11:13], 33)
	payload[13] = 42
	binary.BigEndian.PutUint32(payload[14:18], 1500) // 1.5 s
	fake.notify(notifyFrame(KeyCollisionDetected, payload...))

	// A malformed short report must be dropped, not delivered.
	fake.notify(notifyFrame(KeyCollisionDetected, 0x01, 0x02))

	require.Len(t, got, 1)
	c := got[0]
	assert.InDelta(t, 1.0, c.AccelerationX, 1e-9)
	assert.InDelta(t, 0.5, c.AccelerationY, 1e-9)
	assert.InDelta(t, 2.0, c.AccelerationZ, 1e-9)
	assert.True(t, c.XAxis)
	assert.False(t, c.YAxis)
	assert.Equal(t, uint16(11), c.PowerX)
	assert.Equal(t, uint16(22), c.PowerY)
	assert.Equal(t, uint16(33), c.PowerZ)
	assert.Equal(t, byte(42), c.Speed)
	assert.InDelta(t, 1.5, c.Time, 1e-9)
}

func TestGyroMaxListenerReportsAxis(t *testing.T) {
	fake := newFakeAdapter()
	ty := newTestToy(t, ModelMini, fake, nil)

	var axes []byte
	ty.AddGyroMaxListener(func(axis byte) { axes = append(axes, axis) })

	fake.notify(notifyFrame(KeyGyroMax, 0x04))
	assert.Equal(t, []byte{0x04}, axes)
}

func TestSensorStreamingCommandsEncodeMasks(t *testing.T) {
	fake := newFakeAdapter()
	fake.respondOK()
	ty := newTestToy(t, ModelMini, fake, nil)
	ctx := context.Background()

	mask := ty.Capability().Sensors.GroupMask(SensorAccelerometer)
	require.NoError(t, ty.SetSensorStreamingMask(ctx, 250, 0, mask))

	w := lastWrite(t, fake)
	require.Len(t, w.Data, 7)
	assert.Equal(t, uint16(250), binary.BigEndian.Uint16(w.Data[0:2]))
	assert.Equal(t, byte(0), w.Data[2])
	assert.Equal(t, mask, binary.BigEndian.Uint32(w.Data[3:7]))

	require.NoError(t, ty.SetExtendedSensorStreamingMask(ctx, 0x2000000))
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x00}, lastWrite(t, fake).Data)
}
