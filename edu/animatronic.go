package edu

import (
	"context"

	"github.com/wwj718/spherov2/toy"
)

// Stance is a droid leg configuration.
type Stance string

const (
	// StanceBipod stands the droid up on two legs.
	StanceBipod Stance = "bipod"

	// StanceTripod drops the third leg for fast, stable driving.
	StanceTripod Stance = "tripod"
)

// Dome servo travel in degrees.
const (
	domePositionMin = -160
	domePositionMax = 180
)

// SetDomePosition rotates the droid head to angle degrees, clamped to
// the servo's travel. Silent no-op on models without a head.
func (a *API) SetDomePosition(ctx context.Context, angle float64) error {
	if err := a.guard(); err != nil {
		return err
	}
	if !a.toy.Capability().HasHead {
		return nil
	}
	if angle < domePositionMin {
		angle = domePositionMin
	}
	if angle > domePositionMax {
		angle = domePositionMax
	}
	return a.toy.SetHeadPosition(ctx, float32(angle))
}

// SetStance shifts the droid between its bipod and tripod leg
// configurations. Unknown stances are rejected; models without legs
// ignore the call.
func (a *API) SetStance(ctx context.Context, s Stance) error {
	if err := a.guard(); err != nil {
		return err
	}
	var action toy.LegAction
	switch s {
	case StanceBipod:
		action = toy.LegActionTwoLegs
	case StanceTripod:
		action = toy.LegActionThreeLegs
	default:
		return &toy.InvalidArgumentError{What: "stance", Value: s}
	}
	if !a.toy.Capability().HasLegs {
		return nil
	}
	return a.toy.PerformLegAction(ctx, action)
}

// SetWaddle toggles the droid waddle walk. Any drive motion stops first;
// waddling and rolling do not mix.
func (a *API) SetWaddle(ctx context.Context, on bool) error {
	if err := a.guard(); err != nil {
		return err
	}
	if !a.toy.Capability().HasLegs {
		return nil
	}
	if err := a.stopAllMotion(ctx); err != nil {
		return err
	}
	action := toy.LegActionStop
	if on {
		action = toy.LegActionWaddle
	}
	return a.toy.PerformLegAction(ctx, action)
}

// PlayAnimation runs one of the model's scripted animations and blocks
// until the device reports it finished. Motion stops first so the
// animation owns the motors. Models without animations ignore the call;
// IDs outside the model's catalog are rejected.
func (a *API) PlayAnimation(ctx context.Context, anim toy.Animation) error {
	if err := a.guard(); err != nil {
		return err
	}
	if !a.toy.Capability().HasAnimations {
		return nil
	}
	if err := a.stopAllMotion(ctx); err != nil {
		return err
	}
	return a.toy.PlayAnimation(ctx, anim, true)
}

// PlaySound plays an entry from the model's audio catalog, preempting
// anything already playing. Silent no-op on models without audio.
func (a *API) PlaySound(ctx context.Context, sound uint16) error {
	if err := a.guard(); err != nil {
		return err
	}
	if !a.toy.Capability().HasAudio {
		return nil
	}
	return a.toy.PlayAudioFile(ctx, sound, toy.PlaybackImmediately)
}

// SetAudioVolume sets playback volume, 0-255. Silent no-op on models
// without audio.
func (a *API) SetAudioVolume(ctx context.Context, volume int) error {
	if err := a.guard(); err != nil {
		return err
	}
	if !a.toy.Capability().HasAudio {
		return nil
	}
	return a.toy.SetAudioVolume(ctx, clampChannel(volume))
}
