package edu

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/wwj718/spherov2/toy"
)

// Vector3 is a three-axis sensor reading.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// Vector2 is a planar reading, used for the locator and velocity streams.
type Vector2 struct {
	X float64
	Y float64
}

// Attitude is the IMU orientation in degrees.
type Attitude struct {
	Pitch float64
	Roll  float64
	Yaw   float64
}

// Fall detector tuning. The smoothed thresholds apply with stabilization
// active; raw thresholds compare the instantaneous sample because the
// disabled IMU filter makes the smoothed track unreliable.
const (
	freefallDelay            = 200 * time.Millisecond
	weightlessSmoothedLimit  = 0.5
	weightlessRawLimit       = 0.1
	landingSmoothedThreshold = 1.1
	landingRawThreshold      = 0.8
)

// fallDetector turns the vertical acceleration stream into freefall and
// landing transitions. Near-zero vertical acceleration means the body is
// unsupported; once that has lasted past freefallDelay it is a fall, and
// the next impact spike is the landing.
type fallDetector struct {
	smoothed      float64 // low-pass vertical acceleration, 1 g at rest
	lastSupported time.Time
	falling       bool
	landingDue    bool
}

func newFallDetector(now time.Time) fallDetector {
	return fallDetector{smoothed: 1, lastSupported: now}
}

// step feeds one vertical acceleration sample and reports which
// transitions it triggered. Freefall fires at most once per sustained
// weightless interval; a supported sample re-arms the detector.
func (f *fallDetector) step(now time.Time, vacc float64, stabilized bool) (freefall, landing bool) {
	f.smoothed = (f.smoothed + vacc*3) / 4

	weightless := math.Abs(vacc) < weightlessRawLimit
	if stabilized {
		weightless = math.Abs(f.smoothed) < weightlessSmoothedLimit
	}
	if weightless {
		if now.Sub(f.lastSupported) > freefallDelay && !f.falling {
			f.falling = true
			f.landingDue = true
			freefall = true
		}
	} else {
		f.lastSupported = now
		f.falling = false
	}

	impact := math.Abs(vacc) > landingRawThreshold
	if stabilized {
		impact = math.Abs(f.smoothed) > landingSmoothedThreshold
	}
	if f.landingDue && impact {
		f.landingDue = false
		landing = true
	}
	return freefall, landing
}

// mat3 is a row-major 3x3 rotation matrix.
type mat3 [3][3]float64

func rotX(a float64) mat3 {
	s, c := math.Sincos(a)
	return mat3{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

func rotY(a float64) mat3 {
	s, c := math.Sincos(a)
	return mat3{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
}

func rotZ(a float64) mat3 {
	s, c := math.Sincos(a)
	return mat3{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

func matMul(a, b mat3) mat3 {
	var out mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return out
}

// verticalAcceleration projects the body-frame accelerometer reading onto
// the world vertical. The body frame is rotated about z, x, y in turn by
// roll, pitch, yaw; transposing that rotation carries the swizzled
// reading (ax, -az, ay) back to the world frame, whose index 1 is
// vertical. Resting flat this reads +1 g.
func verticalAcceleration(att Attitude, acc Vector3) float64 {
	const degToRad = math.Pi / 180
	r := matMul(rotY(att.Yaw*degToRad), matMul(rotX(att.Pitch*degToRad), rotZ(att.Roll*degToRad)))
	return -(r[0][1]*acc.X + r[1][1]*-acc.Z + r[2][1]*acc.Y)
}

// sensorCore merges streamed samples into the session snapshot and keeps
// the derived state current: vertical acceleration, the fall detector,
// and the odometer.
type sensorCore struct {
	mu   sync.RWMutex
	data map[string]map[string]float64

	vacc     float64
	haveVacc bool

	distance float64
	lastLoc  Vector2
	haveLoc  bool

	fall fallDetector
}

func newSensorCore(now time.Time) *sensorCore {
	return &sensorCore{
		data: make(map[string]map[string]float64),
		fall: newFallDetector(now),
	}
}

// ingest merges one decoded sample into the snapshot and returns the
// event kinds the sample triggered. Groups never reset during a session;
// a group absent from the sample keeps its previous values.
func (s *sensorCore) ingest(now time.Time, groups map[string]map[string]float64, stabilized bool) []EventKind {
	if len(groups) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, comps := range groups {
		g := s.data[name]
		if g == nil {
			g = make(map[string]float64, len(comps))
			s.data[name] = g
		}
		for comp, v := range comps {
			g[comp] = v
		}
	}

	kinds := []EventKind{EventSensorData}

	// The odometer accumulates planar deltas between consecutive locator
	// fixes. The first fix only establishes the origin.
	if _, fresh := groups[toy.SensorLocator]; fresh {
		loc := s.data[toy.SensorLocator]
		cur := Vector2{X: loc["x"], Y: loc["y"]}
		if s.haveLoc {
			s.distance += math.Hypot(cur.X-s.lastLoc.X, cur.Y-s.lastLoc.Y)
		}
		s.lastLoc = cur
		s.haveLoc = true
	}

	att, haveAtt := s.data[toy.SensorAttitude]
	acc, haveAcc := s.data[toy.SensorAccelerometer]
	if haveAtt && haveAcc {
		s.vacc = verticalAcceleration(
			Attitude{Pitch: att["pitch"], Roll: att["roll"], Yaw: att["yaw"]},
			Vector3{X: acc["x"], Y: acc["y"], Z: acc["z"]},
		)
		s.haveVacc = true

		freefall, landing := s.fall.step(now, s.vacc, stabilized)
		if freefall {
			kinds = append(kinds, EventFreefall)
		}
		if landing {
			kinds = append(kinds, EventLanding)
		}
	}

	return kinds
}

func (s *sensorCore) vector3(group string) (Vector3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.data[group]
	if !ok {
		return Vector3{}, false
	}
	return Vector3{X: g["x"], Y: g["y"], Z: g["z"]}, true
}

func (s *sensorCore) vector2(group string) (Vector2, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.data[group]
	if !ok {
		return Vector2{}, false
	}
	return Vector2{X: g["x"], Y: g["y"]}, true
}

func (s *sensorCore) attitude() (Attitude, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.data[toy.SensorAttitude]
	if !ok {
		return Attitude{}, false
	}
	return Attitude{Pitch: g["pitch"], Roll: g["roll"], Yaw: g["yaw"]}, true
}

func (s *sensorCore) verticalAccel() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vacc, s.haveVacc
}

func (s *sensorCore) totalDistance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distance
}

// Location returns the latest locator fix in cm from the power-on origin.
// ok is false until the first streamed fix arrives.
func (a *API) Location() (Vector2, bool) {
	return a.sensors.vector2(toy.SensorLocator)
}

// Velocity returns the latest ground velocity in cm/s.
func (a *API) Velocity() (Vector2, bool) {
	return a.sensors.vector2(toy.SensorVelocity)
}

// Acceleration returns the latest body-frame accelerometer sample in g.
func (a *API) Acceleration() (Vector3, bool) {
	return a.sensors.vector3(toy.SensorAccelerometer)
}

// Gyroscope returns the latest angular velocity sample in °/s.
func (a *API) Gyroscope() (Vector3, bool) {
	return a.sensors.vector3(toy.SensorGyroscope)
}

// Orientation returns the latest IMU attitude in degrees.
func (a *API) Orientation() (Attitude, bool) {
	return a.sensors.attitude()
}

// VerticalAcceleration returns the world-vertical projection of the
// latest accelerometer sample, in g. Resting flat it reads about +1.
func (a *API) VerticalAcceleration() (float64, bool) {
	return a.sensors.verticalAccel()
}

// Distance returns the cm travelled since the session started, summed
// over consecutive locator fixes. It never decreases.
func (a *API) Distance() float64 {
	return a.sensors.totalDistance()
}

// BatteryVoltage queries the device's battery voltage in volts.
func (a *API) BatteryVoltage(ctx context.Context) (float64, error) {
	if err := a.guard(); err != nil {
		return 0, err
	}
	return a.toy.GetBatteryVoltage(ctx)
}
