package toy

// Animation is a scripted movement/light/sound sequence identifier. The
// catalog is model-specific; IDs below are the R2-D2/R2-Q5 set.
type Animation uint16

const (
	AnimCharger1         Animation = 0
	AnimCharger2         Animation = 1
	AnimCharger3         Animation = 2
	AnimCharger4         Animation = 3
	AnimCharger5         Animation = 4
	AnimCharger6         Animation = 5
	AnimCharger7         Animation = 6
	AnimEmoteAlarm       Animation = 7
	AnimEmoteAngry       Animation = 8
	AnimEmoteAttention   Animation = 9
	AnimEmoteFrustrated  Animation = 10
	AnimEmoteDrive       Animation = 11
	AnimEmoteExcited     Animation = 12
	AnimEmoteSearch      Animation = 13
	AnimEmoteShortCircut Animation = 14
	AnimEmoteLaugh       Animation = 15
	AnimEmoteNo          Animation = 16
	AnimEmoteRetreat     Animation = 17
	AnimEmoteFiery       Animation = 18
	AnimEmoteUnderstood  Animation = 19
	AnimEmoteYes         Animation = 21
	AnimEmoteScan        Animation = 22
	AnimEmoteSurprised   Animation = 24
	AnimIdle1            Animation = 25
	AnimIdle2            Animation = 26
	AnimIdle3            Animation = 27
	AnimWWMAngry         Animation = 31
	AnimWWMAnxious       Animation = 32
	AnimWWMBow           Animation = 33
	AnimWWMConcern       Animation = 34
	AnimWWMCurious       Animation = 35
	AnimWWMDoubleTake    Animation = 36
	AnimWWMExcited       Animation = 37
	AnimWWMFiery         Animation = 38
	AnimWWMFrustrated    Animation = 39
	AnimWWMHappy         Animation = 40
	AnimWWMJittery       Animation = 41
	AnimWWMLaugh         Animation = 42
	AnimWWMLongShake     Animation = 43
	AnimWWMNo            Animation = 44
	AnimWWMOminous       Animation = 45
	AnimWWMRelieved      Animation = 46
	AnimWWMSad           Animation = 47
	AnimWWMScared        Animation = 48
	AnimWWMShake         Animation = 49
	AnimWWMSurprised     Animation = 50
	AnimWWMTaunting      Animation = 51
	AnimWWMWhisper       Animation = 52
	AnimWWMYelling       Animation = 53
	AnimWWMYoohoo        Animation = 54
	AnimMotor            Animation = 55
)

// r2Animations is the exact catalog the droid firmware accepts; note the
// gaps at 20, 23 and 28-30.
var r2Animations = func() map[uint16]struct{} {
	ids := []Animation{
		AnimCharger1, AnimCharger2, AnimCharger3, AnimCharger4, AnimCharger5,
		AnimCharger6, AnimCharger7, AnimEmoteAlarm, AnimEmoteAngry,
		AnimEmoteAttention, AnimEmoteFrustrated, AnimEmoteDrive,
		AnimEmoteExcited, AnimEmoteSearch, AnimEmoteShortCircut,
		AnimEmoteLaugh, AnimEmoteNo, AnimEmoteRetreat, AnimEmoteFiery,
		AnimEmoteUnderstood, AnimEmoteYes, AnimEmoteScan, AnimEmoteSurprised,
		AnimIdle1, AnimIdle2, AnimIdle3, AnimWWMAngry, AnimWWMAnxious,
		AnimWWMBow, AnimWWMConcern, AnimWWMCurious, AnimWWMDoubleTake,
		AnimWWMExcited, AnimWWMFiery, AnimWWMFrustrated, AnimWWMHappy,
		AnimWWMJittery, AnimWWMLaugh, AnimWWMLongShake, AnimWWMNo,
		AnimWWMOminous, AnimWWMRelieved, AnimWWMSad, AnimWWMScared,
		AnimWWMShake, AnimWWMSurprised, AnimWWMTaunting, AnimWWMWhisper,
		AnimWWMYelling, AnimWWMYoohoo, AnimMotor,
	}
	set := make(map[uint16]struct{}, len(ids))
	for _, id := range ids {
		set[uint16(id)] = struct{}{}
	}
	return set
}()

func isR2Animation(id uint16) bool {
	_, ok := r2Animations[id]
	return ok
}
