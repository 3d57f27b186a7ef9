// Package logic contains the pure simulation and classification logic for the
// spacecraft telemetry stream.
// This package has NO external dependencies (no MQTT, GPIO, OS, or time.Sleep);
// wall time, where needed, is passed in.
// Ticks are plain integers; the caller decides when a tick happens.
package logic

// Status is the classification of a single telemetry snapshot.
type Status string

const (
	StatusNormal Status = "NORMAL"
	StatusFail   Status = "FAIL"
)

// Vec3 is an ordered X/Y/Z triple.
type Vec3 [3]float64

// Snapshot is the complete mutable sensor state at a given tick.
// Drop is derived from Altitude and is never stored here.
type Snapshot struct {
	TimeSec      int
	Altitude     float64 // km
	Gyro         Vec3    // rad/s, recomputed every tick
	Magnetometer Vec3    // unitless, only changed by fault hooks
}

// NewSnapshot returns the state before the first tick.
func NewSnapshot(nominalAltitude float64) Snapshot {
	return Snapshot{Altitude: nominalAltitude}
}

// Drop returns how far the snapshot sits below the nominal altitude.
func (s Snapshot) Drop(nominalAltitude float64) float64 {
	return nominalAltitude - s.Altitude
}

// Thresholds are the magnitude bounds per sensor channel. A value strictly
// greater than its bound trips the channel.
type Thresholds struct {
	Altitude float64 // km deviation from nominal
	Gyro     float64 // rad/s per axis
	Mag      float64 // per axis
}

// Evolution holds the coefficients of the deterministic sensor model.
type Evolution struct {
	DecayBase      float64 // km subtracted every tick
	DecayAmplitude float64 // km, amplitude of the oscillating decay term
	DecayFreq      float64 // rad per tick

	GyroAmplitude Vec3 // rad/s
	GyroFreq      Vec3 // rad per tick
}

// Config is everything the Driver needs at construction.
type Config struct {
	NominalAltitude float64
	Thresholds      Thresholds
	Evolution       Evolution
}

// Defaults.
const (
	DefaultNominalAltitude   = 360.0
	DefaultAltitudeThreshold = 10.0
	DefaultGyroThreshold     = 0.5
	DefaultMagThreshold      = 0.5
)

// DefaultThresholds returns the stock safety thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Altitude: DefaultAltitudeThreshold,
		Gyro:     DefaultGyroThreshold,
		Mag:      DefaultMagThreshold,
	}
}

// DefaultEvolution returns the stock orbit-decay and gyro model.
func DefaultEvolution() Evolution {
	return Evolution{
		DecayBase:      0.001,
		DecayAmplitude: 0.002,
		DecayFreq:      0.1,
		GyroAmplitude:  Vec3{0.01, 0.005, 0.002},
		GyroFreq:       Vec3{0.1, 0.1, 0.05},
	}
}

// DefaultConfig returns the stock Driver configuration.
func DefaultConfig() Config {
	return Config{
		NominalAltitude: DefaultNominalAltitude,
		Thresholds:      DefaultThresholds(),
		Evolution:       DefaultEvolution(),
	}
}

// Report is the per-tick result handed to sinks.
type Report struct {
	TimeSec      int
	Altitude     float64
	Drop         float64
	Gyro         Vec3
	Magnetometer Vec3
	Status       Status
	Flags        FaultFlags
}

// StatusCounts tracks how many ticks were classified each way.
type StatusCounts struct {
	Normal int
	Fail   int
}
