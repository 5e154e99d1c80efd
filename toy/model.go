package toy

import (
	"fmt"
	"math"
	"strings"
)

// Model identifies a Sphero-family toy variant. The variant selects a
// Capability value at construction; no behavior branches on model type at
// call sites.
type Model int

const (
	ModelUnknown Model = iota
	ModelBB8
	ModelBB9E
	ModelR2D2
	ModelR2Q5
	ModelMini
	ModelBolt
	ModelOllie
)

var modelNames = map[Model]string{
	ModelUnknown: "unknown",
	ModelBB8:     "BB-8",
	ModelBB9E:    "BB-9E",
	ModelR2D2:    "R2-D2",
	ModelR2Q5:    "R2-Q5",
	ModelMini:    "Sphero Mini",
	ModelBolt:    "Sphero BOLT",
	ModelOllie:   "Ollie",
}

func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the model name, so JSON and YAML carry "R2-D2"
// rather than an enum ordinal.
func (m Model) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText resolves a name produced by MarshalText.
func (m *Model) UnmarshalText(text []byte) error {
	s := string(text)
	for model, name := range modelNames {
		if strings.EqualFold(name, s) {
			*m = model
			return nil
		}
	}
	return fmt.Errorf("unknown model %q", s)
}

// LEDChannel names one logical light on a toy. Channels map to bit
// positions in the 16-bit LED mask; which channels exist, and where,
// varies per model.
type LEDChannel string

const (
	LEDMain          LEDChannel = "main"
	LEDFront         LEDChannel = "front"
	LEDBack          LEDChannel = "back"
	LEDAim           LEDChannel = "aim"
	LEDDome          LEDChannel = "dome"
	LEDHoloProjector LEDChannel = "holo_projector"
	LEDLogicDisplays LEDChannel = "logic_displays"
)

// Capability describes everything model-specific: advertisement prefix,
// drive characteristics, LED layout, sensor schemas and the animatronic
// surface. One immutable value per model.
type Capability struct {
	Model               Model
	AdvertisementPrefix string

	// TimePerRevolution is the seconds a full 360° spin takes at the
	// firmware's turning rate; it floors the duration of spin commands.
	TimePerRevolution float64
	MaxSpeed          int

	// remapSpeed translates API speed to the model's motor scale; nil
	// means identity.
	remapSpeed func(int) int

	// LEDs maps a channel to its bit positions in the 16-bit LED mask.
	// RGB channels occupy three consecutive bits (r, g, b); brightness
	// channels occupy one. A channel absent from the map does not exist
	// on the model.
	LEDs map[LEDChannel][]uint8

	// MainAliases lists the channels a main-LED write fans out to in
	// addition to LEDMain's own bits (empty when main has its own bits).
	MainAliases []LEDChannel

	Sensors         *SensorSchema
	ExtendedSensors *SensorSchema

	HasHead bool
	HasLegs bool
	Drives  bool

	// HasStabilization marks models whose IMU control loop is toggled
	// over the wire. Droids keep theirs engaged internally and ignore
	// the command, so callers should track the flag without sending.
	HasStabilization bool

	// validAnimation reports whether the animation ID exists on the
	// model; nil accepts any ID (catalog unknown). HasAnimations false
	// rejects all.
	HasAnimations  bool
	validAnimation func(uint16) bool

	HasAudio bool
}

// RemapSpeed translates an API speed (-255..255) to the model's motor
// scale. Zero always maps to zero so a stop is a stop on every model.
func (c *Capability) RemapSpeed(speed int) int {
	if speed == 0 || c.remapSpeed == nil {
		return speed
	}
	return c.remapSpeed(speed)
}

// ValidAnimation reports whether the animation ID can play on the model.
func (c *Capability) ValidAnimation(id uint16) bool {
	if !c.HasAnimations {
		return false
	}
	if c.validAnimation == nil {
		return true
	}
	return c.validAnimation(id)
}

// miniRemapSpeed expands low API speeds past the Mini's motor deadband:
// the motors barely move below ~85, so 1..255 maps onto 85..254.
func miniRemapSpeed(speed int) int {
	if speed > 0 {
		return int(math.Round(float64(speed+126) * 2 / 3))
	}
	return int(math.Round(float64(speed-126) * 2 / 3))
}

// r2LEDs is the droid LED layout for the 16-bit mask command: front RGB
// in bits 0-2, logic displays in 3, back RGB in 4-6, holo projector in 7.
var r2LEDs = map[LEDChannel][]uint8{
	LEDFront:         {0, 1, 2},
	LEDLogicDisplays: {3},
	LEDBack:          {4, 5, 6},
	LEDHoloProjector: {7},
}

var capabilities = map[Model]*Capability{
	ModelBB8: {
		Model:               ModelBB8,
		AdvertisementPrefix: "BB-",
		TimePerRevolution:   0.45,
		MaxSpeed:            255,
		LEDs: map[LEDChannel][]uint8{
			LEDMain: {0, 1, 2},
			LEDAim:  {3},
		},
		Sensors:          v2Sensors,
		ExtendedSensors:  sphericalExtendedSensors,
		Drives:           true,
		HasStabilization: true,
		HasAnimations:    true,
		HasAudio:         true,
	},
	ModelBB9E: {
		Model:               ModelBB9E,
		AdvertisementPrefix: "GB-",
		TimePerRevolution:   0.45,
		MaxSpeed:            255,
		LEDs: map[LEDChannel][]uint8{
			LEDMain: {0, 1, 2},
			LEDAim:  {3},
			LEDDome: {4},
		},
		Sensors:          v2Sensors,
		ExtendedSensors:  sphericalExtendedSensors,
		Drives:           true,
		HasStabilization: true,
		HasAnimations:    true,
		HasAudio:         true,
	},
	ModelR2D2: {
		Model:               ModelR2D2,
		AdvertisementPrefix: "D2-",
		TimePerRevolution:   0.7,
		MaxSpeed:            255,
		LEDs:                r2LEDs,
		MainAliases:         []LEDChannel{LEDFront, LEDBack},
		Sensors:             v2Sensors,
		ExtendedSensors:     droidExtendedSensors,
		HasHead:             true,
		HasLegs:             true,
		Drives:              true,
		HasAnimations:       true,
		validAnimation:      isR2Animation,
		HasAudio:            true,
	},
	ModelR2Q5: {
		Model:               ModelR2Q5,
		AdvertisementPrefix: "Q5-",
		TimePerRevolution:   0.7,
		MaxSpeed:            255,
		LEDs:                r2LEDs,
		MainAliases:         []LEDChannel{LEDFront, LEDBack},
		Sensors:             v2Sensors,
		ExtendedSensors:     droidExtendedSensors,
		HasHead:             true,
		HasLegs:             true,
		Drives:              true,
		HasAnimations:       true,
		validAnimation:      isR2Animation,
		HasAudio:            true,
	},
	ModelMini: {
		Model:               ModelMini,
		AdvertisementPrefix: "SM-",
		TimePerRevolution:   0.5,
		MaxSpeed:            255,
		remapSpeed:          miniRemapSpeed,
		LEDs: map[LEDChannel][]uint8{
			LEDMain: {0, 1, 2},
			LEDAim:  {3},
		},
		Sensors:          v2Sensors,
		ExtendedSensors:  sphericalExtendedSensors,
		Drives:           true,
		HasStabilization: true,
	},
	ModelBolt: {
		Model:               ModelBolt,
		AdvertisementPrefix: "SB-",
		TimePerRevolution:   0.45,
		MaxSpeed:            255,
		LEDs: map[LEDChannel][]uint8{
			LEDFront: {0, 1, 2},
			LEDBack:  {3, 4, 5},
		},
		MainAliases:      []LEDChannel{LEDFront, LEDBack},
		Sensors:          v2Sensors,
		ExtendedSensors:  sphericalExtendedSensors,
		Drives:           true,
		HasStabilization: true,
		HasAudio:         true,
	},
	ModelOllie: {
		Model:               ModelOllie,
		AdvertisementPrefix: "2B-",
		TimePerRevolution:   0.6,
		MaxSpeed:            255,
		LEDs: map[LEDChannel][]uint8{
			LEDMain: {0, 1, 2},
			LEDAim:  {3},
		},
		Sensors:          v2Sensors,
		ExtendedSensors:  sphericalExtendedSensors,
		Drives:           true,
		HasStabilization: true,
	},
}

// genericCapability covers unrecognized peripherals: drive and main LED
// only, default turning rate.
var genericCapability = &Capability{
	Model:             ModelUnknown,
	TimePerRevolution: 0.45,
	MaxSpeed:          255,
	LEDs: map[LEDChannel][]uint8{
		LEDMain: {0, 1, 2},
	},
	Sensors:          v2Sensors,
	ExtendedSensors:  sphericalExtendedSensors,
	Drives:           true,
	HasStabilization: true,
}

// CapabilityFor returns the capability table for the model. Unknown
// models get a conservative generic table.
func CapabilityFor(m Model) *Capability {
	if c, ok := capabilities[m]; ok {
		return c
	}
	return genericCapability
}

// TypeFromName infers the model from an advertised device name by its
// model prefix ("D2-A1B2" is an R2-D2).
func TypeFromName(name string) (Model, bool) {
	for m, c := range capabilities {
		if c.AdvertisementPrefix != "" && strings.HasPrefix(name, c.AdvertisementPrefix) {
			return m, true
		}
	}
	return ModelUnknown, false
}
