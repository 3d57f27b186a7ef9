package logic

import (
	"math"
	"strings"
)

// FaultFlags records which checks tripped for a snapshot.
// Bits 0-3 keep the layout of the flight firmware fault register.
type FaultFlags uint8

const (
	FaultGyroX FaultFlags = 1 << iota
	FaultGyroY
	FaultGyroZ
	FaultNonFinite
	FaultAltitude
	FaultMagX
	FaultMagY
	FaultMagZ
)

var faultNames = []struct {
	flag FaultFlags
	name string
}{
	{FaultGyroX, "GYRO_X"},
	{FaultGyroY, "GYRO_Y"},
	{FaultGyroZ, "GYRO_Z"},
	{FaultNonFinite, "NON_FINITE"},
	{FaultAltitude, "ALTITUDE"},
	{FaultMagX, "MAG_X"},
	{FaultMagY, "MAG_Y"},
	{FaultMagZ, "MAG_Z"},
}

// Has reports whether every bit in f2 is set.
func (f FaultFlags) Has(f2 FaultFlags) bool {
	return f&f2 == f2
}

// String renders the set flags joined by "|", or "NONE".
func (f FaultFlags) String() string {
	if f == 0 {
		return "NONE"
	}
	var parts []string
	for _, fn := range faultNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Names returns the names of the set flags in bit order.
func (f FaultFlags) Names() []string {
	names := []string{}
	for _, fn := range faultNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

// Diagnose runs every check against snap and returns the tripped flags.
// Comparisons are strict: a deviation equal to its threshold passes.
// A NaN or infinite reading sets FaultNonFinite along with its channel flag,
// because NaN never compares greater than anything.
func Diagnose(snap Snapshot, nominalAltitude float64, th Thresholds) FaultFlags {
	var flags FaultFlags

	if exceeds(snap.Altitude-nominalAltitude, th.Altitude) {
		flags |= FaultAltitude
	}
	if !finite(snap.Altitude) {
		flags |= FaultNonFinite
	}

	for i := 0; i < 3; i++ {
		if exceeds(snap.Gyro[i], th.Gyro) {
			flags |= FaultGyroX << i
		}
		if exceeds(snap.Magnetometer[i], th.Mag) {
			flags |= FaultMagX << i
		}
		if !finite(snap.Gyro[i]) || !finite(snap.Magnetometer[i]) {
			flags |= FaultNonFinite
		}
	}

	return flags
}

// Evaluate classifies snap. It is memoryless: the result depends only on its
// arguments, so a single good tick after a failure reports NORMAL again.
func Evaluate(snap Snapshot, nominalAltitude float64, th Thresholds) Status {
	if Diagnose(snap, nominalAltitude, th) != 0 {
		return StatusFail
	}
	return StatusNormal
}

func exceeds(v, limit float64) bool {
	return !finite(v) || math.Abs(v) > limit
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
