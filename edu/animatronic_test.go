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

func legRef() *packet.Packet {
	return commands.PerformLegAction(commands.R2LegActionStop)
}

func TestSetDomePositionClampsToServoTravel(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelR2D2, nil)
	ctx := context.Background()

	require.NoError(t, a.SetDomePosition(ctx, 200))
	heads := writesFor(fake, commands.SetHeadPosition(0))
	require.NotEmpty(t, heads)
	assert.Equal(t, commands.SetHeadPosition(180).Data, heads[len(heads)-1].Data)

	require.NoError(t, a.SetDomePosition(ctx, -200))
	heads = writesFor(fake, commands.SetHeadPosition(0))
	assert.Equal(t, commands.SetHeadPosition(-160).Data, heads[len(heads)-1].Data)
}

func TestSetDomePositionIgnoredWithoutHead(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelBB9E, nil)

	require.NoError(t, a.SetDomePosition(context.Background(), 45))
	assert.Empty(t, writesFor(fake, commands.SetHeadPosition(0)))
}

func TestSetStanceMapsToLegActions(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelR2D2, nil)
	ctx := context.Background()

	require.NoError(t, a.SetStance(ctx, StanceBipod))
	legs := writesFor(fake, legRef())
	require.NotEmpty(t, legs)
	assert.Equal(t, []byte{byte(commands.R2LegActionTwoLegs)}, legs[len(legs)-1].Data)

	require.NoError(t, a.SetStance(ctx, StanceTripod))
	legs = writesFor(fake, legRef())
	assert.Equal(t, []byte{byte(commands.R2LegActionThreeLegs)}, legs[len(legs)-1].Data)

	var argErr *toy.InvalidArgumentError
	require.ErrorAs(t, a.SetStance(ctx, Stance("quadruped")), &argErr)
	assert.Equal(t, "stance", argErr.What)
}

func TestSetStanceIgnoredWithoutLegs(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelMini, nil)

	require.NoError(t, a.SetStance(context.Background(), StanceBipod))
	assert.Empty(t, writesFor(fake, legRef()))
}

func TestSetWaddleStopsDriveFirst(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelR2D2, nil)
	ctx := context.Background()

	require.NoError(t, a.SetSpeed(ctx, 80))
	require.NoError(t, a.SetWaddle(ctx, true))

	assert.Zero(t, a.Speed())

	rollingAt, stopDriveAt, waddleAt := -1, -1, -1
	for i, w := range fake.written() {
		switch {
		case sameCommand(w, legRef()) && w.Data[0] == byte(commands.R2LegActionWaddle):
			waddleAt = i
		case sameCommand(w, driveRef()) && w.Data[0] == 80:
			rollingAt = i
		case sameCommand(w, driveRef()) && w.Data[0] == 0 && rollingAt >= 0 && waddleAt == -1:
			stopDriveAt = i
		}
	}
	require.GreaterOrEqual(t, waddleAt, 0, "waddle action must reach the wire")
	require.Greater(t, stopDriveAt, rollingAt, "drive must stop before waddling starts")

	require.NoError(t, a.SetWaddle(ctx, false))
	legs := writesFor(fake, legRef())
	assert.Equal(t, []byte{byte(commands.R2LegActionStop)}, legs[len(legs)-1].Data)
}

func TestPlayAnimationWaitsForCompletion(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelR2D2, nil)

	done := make(chan error, 1)
	go func() {
		done <- a.PlayAnimation(context.Background(), toy.AnimEmoteYes)
	}()

	ref := commands.PlayAnimation(uint16(toy.AnimEmoteYes))
	require.Eventually(t, func() bool {
		return len(writesFor(fake, ref)) == 1
	}, time.Second, 5*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("PlayAnimation returned before the completion notification: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	fake.notify(notifyFrame(toy.KeyPlayAnimationComplete))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("PlayAnimation never observed the completion notification")
	}
}

func TestPlayAnimationRejectsUnknownID(t *testing.T) {
	a, _ := newStartedAPI(t, toy.ModelR2D2, nil)

	// 20 is one of the catalog gaps.
	var argErr *toy.InvalidArgumentError
	require.ErrorAs(t, a.PlayAnimation(context.Background(), toy.Animation(20)), &argErr)
	assert.Equal(t, "animation", argErr.What)
}

func TestPlayAnimationIgnoredWithoutCatalog(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelMini, nil)

	require.NoError(t, a.PlayAnimation(context.Background(), toy.AnimEmoteYes))
	assert.Empty(t, writesFor(fake, commands.PlayAnimation(0)))
}

func TestSoundControls(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelR2D2, nil)
	ctx := context.Background()

	require.NoError(t, a.PlaySound(ctx, 0x010B))
	sounds := writesFor(fake, commands.PlayAudioFile(0, commands.AudioPlaybackImmediately))
	require.Len(t, sounds, 1)
	assert.Equal(t, commands.PlayAudioFile(0x010B, commands.AudioPlaybackImmediately).Data, sounds[0].Data)

	require.NoError(t, a.SetAudioVolume(ctx, 300))
	vols := writesFor(fake, commands.SetAudioVolume(0))
	require.Len(t, vols, 1)
	assert.Equal(t, []byte{255}, vols[0].Data)
}

func TestSoundControlsIgnoredWithoutAudio(t *testing.T) {
	a, fake := newStartedAPI(t, toy.ModelMini, nil)
	ctx := context.Background()

	require.NoError(t, a.PlaySound(ctx, 5))
	require.NoError(t, a.SetAudioVolume(ctx, 100))
	assert.Empty(t, writesFor(fake, commands.PlayAudioFile(0, commands.AudioPlaybackImmediately)))
	assert.Empty(t, writesFor(fake, commands.SetAudioVolume(0)))
}
