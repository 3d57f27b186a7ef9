package logic

import (
	"math"
	"testing"
)

func TestNewSnapshotIsNominal(t *testing.T) {
	snap := NewSnapshot(DefaultNominalAltitude)

	if snap.TimeSec != 0 {
		t.Errorf("TimeSec: got %d, want 0", snap.TimeSec)
	}
	if snap.Altitude != 360.0 {
		t.Errorf("Altitude: got %v, want exactly 360.0", snap.Altitude)
	}
	if snap.Gyro != (Vec3{}) {
		t.Errorf("Gyro: got %v, want zero", snap.Gyro)
	}
	if snap.Magnetometer != (Vec3{}) {
		t.Errorf("Magnetometer: got %v, want zero", snap.Magnetometer)
	}
	if got := Evaluate(snap, DefaultNominalAltitude, DefaultThresholds()); got != StatusNormal {
		t.Errorf("status: got %s, want NORMAL", got)
	}
	if got := snap.Drop(DefaultNominalAltitude); got != 0 {
		t.Errorf("Drop: got %v, want 0", got)
	}
}

func TestDecayValues(t *testing.T) {
	e := DefaultEvolution()

	tests := []struct {
		tick int
		want float64
	}{
		{0, 0.001},
		{5, 0.001 + 0.002*math.Sin(0.5)},
		{16, 0.001 + 0.002*math.Sin(1.6)},
		{47, 0.001 + 0.002*math.Sin(4.7)},
	}
	for _, tt := range tests {
		if got := e.Decay(tt.tick); math.Abs(got-tt.want) > 1e-15 {
			t.Errorf("Decay(%d): got %v, want %v", tt.tick, got, tt.want)
		}
	}

	// Around t=47 the oscillation outweighs the base drift and the orbit rises.
	if e.Decay(47) >= 0 {
		t.Errorf("Decay(47): got %v, want negative", e.Decay(47))
	}
}

func TestGyroAt(t *testing.T) {
	e := DefaultEvolution()

	g := e.GyroAt(0)
	if g != (Vec3{0, 0.005, 0}) {
		t.Errorf("GyroAt(0): got %v, want [0 0.005 0]", g)
	}

	g = e.GyroAt(12)
	want := Vec3{0.01 * math.Sin(1.2), 0.005 * math.Cos(1.2), 0.002 * math.Sin(0.6)}
	for i := range g {
		if math.Abs(g[i]-want[i]) > 1e-15 {
			t.Errorf("GyroAt(12)[%d]: got %v, want %v", i, g[i], want[i])
		}
	}
}

func TestAdvanceIntegratesAltitude(t *testing.T) {
	e := DefaultEvolution()
	snap := NewSnapshot(DefaultNominalAltitude)

	// Offset the altitude first; Advance must keep the offset and only
	// subtract the decay for this tick.
	snap.Altitude = 340.0
	e.Advance(&snap, 3)

	want := 340.0 - e.Decay(3)
	if snap.Altitude != want {
		t.Errorf("Altitude: got %v, want %v", snap.Altitude, want)
	}
}

func TestAdvanceRecomputesGyro(t *testing.T) {
	e := DefaultEvolution()
	snap := NewSnapshot(DefaultNominalAltitude)
	snap.Gyro = Vec3{9, 9, 9}

	e.Advance(&snap, 4)

	if snap.Gyro != e.GyroAt(4) {
		t.Errorf("Gyro: got %v, want %v (no memory of earlier values)", snap.Gyro, e.GyroAt(4))
	}
}

func TestAdvanceLeavesMagnetometer(t *testing.T) {
	e := DefaultEvolution()
	snap := NewSnapshot(DefaultNominalAltitude)
	snap.Magnetometer = Vec3{0.1, -0.2, 0.3}

	for tick := 0; tick < 10; tick++ {
		e.Advance(&snap, tick)
	}

	if snap.Magnetometer != (Vec3{0.1, -0.2, 0.3}) {
		t.Errorf("Magnetometer: got %v, want unchanged", snap.Magnetometer)
	}
}

func TestDriftEqualsSumOfDecays(t *testing.T) {
	e := DefaultEvolution()

	windows := []struct{ from, to int }{
		{0, 10},
		{0, 100},
		{30, 70}, // includes ticks where the orbit rises
		{250, 600},
	}
	for _, w := range windows {
		snap := NewSnapshot(DefaultNominalAltitude)
		for tick := 0; tick < w.from; tick++ {
			e.Advance(&snap, tick)
		}
		start := snap.Altitude

		var sum float64
		for tick := w.from; tick < w.to; tick++ {
			e.Advance(&snap, tick)
			sum += 0.001 + 0.002*math.Sin(float64(tick)*0.1)
		}

		if got := start - snap.Altitude; math.Abs(got-sum) > 1e-9 {
			t.Errorf("window [%d,%d): altitude change %v, sum of decays %v", w.from, w.to, got, sum)
		}
	}
}
