package toy

import (
	"encoding/binary"
	"fmt"
	"math"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Sensor group names as they appear in streaming maps and snapshot keys.
const (
	SensorQuaternion    = "quaternion"
	SensorAttitude      = "attitude"
	SensorAccelerometer = "accelerometer"
	SensorAccelOne      = "accel_one"
	SensorLocator       = "locator"
	SensorVelocity      = "velocity"
	SensorSpeed         = "speed"
	SensorCoreTime      = "core_time"
	SensorGyroscope     = "gyroscope"
	SensorHeadAngle     = "r2_head_angle"
)

// SensorComponent is one streamed scalar: its mask bit, the value range
// the firmware maps it over, and an optional unit conversion.
type SensorComponent struct {
	Mask     uint32
	Min, Max float64
	modifier func(float64) float64
}

// SensorSchema is the ordered set of sensor groups a model can stream.
// Iteration order is the wire order: streamed rows carry the enabled
// components in schema declaration order.
type SensorSchema struct {
	groups *orderedmap.OrderedMap[string, *orderedmap.OrderedMap[string, SensorComponent]]
}

type schemaComponent struct {
	name string
	c    SensorComponent
}

type schemaGroup struct {
	name       string
	components []schemaComponent
}

func comp(name string, mask uint32, min, max float64) schemaComponent {
	return schemaComponent{name: name, c: SensorComponent{Mask: mask, Min: min, Max: max}}
}

func compMod(name string, mask uint32, min, max float64, mod func(float64) float64) schemaComponent {
	return schemaComponent{name: name, c: SensorComponent{Mask: mask, Min: min, Max: max, modifier: mod}}
}

func group(name string, components ...schemaComponent) schemaGroup {
	return schemaGroup{name: name, components: components}
}

func buildSchema(groups ...schemaGroup) *SensorSchema {
	s := &SensorSchema{
		groups: orderedmap.New[string, *orderedmap.OrderedMap[string, SensorComponent]](),
	}
	for _, g := range groups {
		m := orderedmap.New[string, SensorComponent]()
		for _, c := range g.components {
			m.Set(c.name, c.c)
		}
		s.groups.Set(g.name, m)
	}
	return s
}

// Has reports whether the schema contains the named group.
func (s *SensorSchema) Has(name string) bool {
	_, ok := s.groups.Get(name)
	return ok
}

// Groups returns the group names in wire order.
func (s *SensorSchema) Groups() []string {
	out := make([]string, 0, s.groups.Len())
	for pair := s.groups.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// GroupMask combines the mask bits of the named groups. Names the schema
// does not contain contribute nothing.
func (s *SensorSchema) GroupMask(names ...string) uint32 {
	var mask uint32
	for _, name := range names {
		components, ok := s.groups.Get(name)
		if !ok {
			continue
		}
		for pair := components.Oldest(); pair != nil; pair = pair.Next() {
			mask |= pair.Value.Mask
		}
	}
	return mask
}

// Decode splits a streamed row into named groups: schema order filtered
// by the enabled mask, one value consumed per enabled component, unit
// modifiers applied. Returns the decoded groups and how many values were
// consumed; a short row stops cleanly at the last complete value.
func (s *SensorSchema) Decode(mask uint32, values []float64) (map[string]map[string]float64, int) {
	out := make(map[string]map[string]float64)
	idx := 0
	for gp := s.groups.Oldest(); gp != nil; gp = gp.Next() {
		var decoded map[string]float64
		for cp := gp.Value.Oldest(); cp != nil; cp = cp.Next() {
			if cp.Value.Mask&mask == 0 {
				continue
			}
			if idx >= len(values) {
				return out, idx
			}
			v := values[idx]
			idx++
			if cp.Value.modifier != nil {
				v = cp.Value.modifier(v)
			}
			if decoded == nil {
				decoded = make(map[string]float64)
			}
			decoded[cp.Key] = v
		}
		if decoded != nil {
			out[gp.Key] = decoded
		}
	}
	return out, idx
}

// metersToCm converts locator and velocity readings to centimeters.
func metersToCm(v float64) float64 { return v * 100 }

// v2Sensors is the primary streaming bank, shared by every v2 model.
var v2Sensors = buildSchema(
	group(SensorQuaternion,
		comp("x", 0x2000000, -1, 1),
		comp("y", 0x1000000, -1, 1),
		comp("z", 0x800000, -1, 1),
		comp("w", 0x400000, -1, 1),
	),
	group(SensorAttitude,
		comp("pitch", 0x40000, -179, 180),
		comp("roll", 0x20000, -179, 180),
		comp("yaw", 0x10000, -179, 180),
	),
	group(SensorAccelerometer,
		comp("x", 0x8000, -8.19, 8.19),
		comp("y", 0x4000, -8.19, 8.19),
		comp("z", 0x2000, -8.19, 8.19),
	),
	group(SensorAccelOne,
		comp("accel_one", 0x200, 0, 8000),
	),
	group(SensorLocator,
		compMod("x", 0x40, -32768, 32767, metersToCm),
		compMod("y", 0x20, -32768, 32767, metersToCm),
	),
	group(SensorVelocity,
		compMod("x", 0x10, -32768, 32767, metersToCm),
		compMod("y", 0x8, -32768, 32767, metersToCm),
	),
	group(SensorSpeed,
		comp("speed", 0x4, 0, 32767),
	),
	group(SensorCoreTime,
		comp("core_time", 0x2, 0, 0),
	),
)

// droidExtendedSensors is the second droid bank: dome angle and gyroscope.
var droidExtendedSensors = buildSchema(
	group(SensorHeadAngle,
		comp("r2_head_angle", 0x4000000, -162, 182),
	),
	group(SensorGyroscope,
		comp("x", 0x2000000, -20000, 20000),
		comp("y", 0x1000000, -20000, 20000),
		comp("z", 0x800000, -20000, 20000),
	),
)

// sphericalExtendedSensors is the second bank for the ball-shaped
// models, which have no dome.
var sphericalExtendedSensors = buildSchema(
	group(SensorGyroscope,
		comp("x", 0x2000000, -20000, 20000),
		comp("y", 0x1000000, -20000, 20000),
		comp("z", 0x800000, -20000, 20000),
	),
)

// DecodeSensorRow splits one streamed row across both banks: the main
// bank's enabled components come first, the extended bank's follow.
func (c *Capability) DecodeSensorRow(mask, extendedMask uint32, values []float64) map[string]map[string]float64 {
	out, consumed := c.Sensors.Decode(mask, values)
	if extendedMask != 0 && consumed < len(values) {
		ext, _ := c.ExtendedSensors.Decode(extendedMask, values[consumed:])
		for name, group := range ext {
			out[name] = group
		}
	}
	return out
}

// decodeFloats splits data into big-endian float32 values.
func decodeFloats(data []byte) []float64 {
	out := make([]float64, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		bits := binary.BigEndian.Uint32(data[i : i+4])
		out = append(out, float64(math.Float32frombits(bits)))
	}
	return out
}

// CollisionData is a decoded collision notification.
type CollisionData struct {
	// Acceleration at impact, in g.
	AccelerationX float64
	AccelerationY float64
	AccelerationZ float64

	// Which axes crossed their threshold.
	XAxis bool
	YAxis bool

	PowerX uint16
	PowerY uint16
	PowerZ uint16

	// Speed at impact, raw firmware units.
	Speed byte

	// Time since firmware boot, seconds.
	Time float64
}

const collisionDataLen = 18

// decodeCollision unpacks the 18-byte collision payload: three uint16
// accelerations in 1/4096 g, an axis bitmask, three uint16 powers, a
// speed byte and a uint32 timestamp in milliseconds, all big-endian.
func decodeCollision(data []byte) (CollisionData, error) {
	if len(data) < collisionDataLen {
		return CollisionData{}, fmt.Errorf("collision payload too short: %d bytes", len(data))
	}
	axis := data[6]
	return CollisionData{
		AccelerationX: float64(binary.BigEndian.Uint16(data[0:2])) / 4096,
		AccelerationY: float64(binary.BigEndian.Uint16(data[2:4])) / 4096,
		AccelerationZ: float64(binary.BigEndian.Uint16(data[4:6])) / 4096,
		XAxis:         axis&1 != 0,
		YAxis:         axis&2 != 0,
		PowerX:        binary.BigEndian.Uint16(data[7:9]),
		PowerY:        binary.BigEndian.Uint16(data[9:11]),
		PowerZ:        binary.BigEndian.Uint16(data[11:13]),
		Speed:         data[13],
		Time:          float64(binary.BigEndian.Uint32(data[14:18])) / 1000,
	}, nil
}

// AppVersion is a firmware version triple.
type AppVersion struct {
	Major    uint16
	Minor    uint16
	Revision uint16
}

func (v AppVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Revision)
}

func decodeAppVersion(data []byte) (AppVersion, error) {
	if len(data) < 6 {
		return AppVersion{}, fmt.Errorf("version payload too short: %d bytes", len(data))
	}
	return AppVersion{
		Major:    binary.BigEndian.Uint16(data[0:2]),
		Minor:    binary.BigEndian.Uint16(data[2:4]),
		Revision: binary.BigEndian.Uint16(data[4:6]),
	}, nil
}
