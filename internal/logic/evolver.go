package logic

import "math"

// Decay returns the altitude lost during tick t.
func (e Evolution) Decay(t int) float64 {
	return e.DecayBase + e.DecayAmplitude*math.Sin(float64(t)*e.DecayFreq)
}

// GyroAt returns the gyro rates for tick t: sine on X and Z, cosine on Y.
func (e Evolution) GyroAt(t int) Vec3 {
	ft := float64(t)
	return Vec3{
		e.GyroAmplitude[0] * math.Sin(ft*e.GyroFreq[0]),
		e.GyroAmplitude[1] * math.Cos(ft*e.GyroFreq[1]),
		e.GyroAmplitude[2] * math.Sin(ft*e.GyroFreq[2]),
	}
}

// Advance moves snap forward by tick t.
// Altitude integrates the per-tick decay, so it depends on every earlier tick
// (including any injected deltas) and must never be recomputed from t alone.
// Gyro is recomputed from scratch. Magnetometer is left as it is.
func (e Evolution) Advance(snap *Snapshot, t int) {
	snap.Altitude -= e.Decay(t)
	snap.Gyro = e.GyroAt(t)
}
