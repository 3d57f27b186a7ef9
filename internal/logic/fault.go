package logic

import "math/rand"

// FaultHook perturbs the snapshot for tick after evolution and before
// evaluation. It must not retain snap.
type FaultHook func(tick int, snap *Snapshot)

// NoFaults is the default hook. It leaves the snapshot untouched.
func NoFaults(int, *Snapshot) {}

// Injection is a set of one-shot deltas applied at exactly one tick.
type Injection struct {
	Tick         int
	Altitude     float64
	Gyro         Vec3
	Magnetometer Vec3
}

// Apply adds the deltas to snap.
func (in Injection) Apply(snap *Snapshot) {
	snap.Altitude += in.Altitude
	for i := 0; i < 3; i++ {
		snap.Gyro[i] += in.Gyro[i]
		snap.Magnetometer[i] += in.Magnetometer[i]
	}
}

// FaultScript is an ordered list of injections.
type FaultScript []Injection

// Hook returns a FaultHook that applies every injection scheduled for the
// current tick. Several injections on the same tick are applied in order.
func (fs FaultScript) Hook() FaultHook {
	if len(fs) == 0 {
		return NoFaults
	}
	byTick := make(map[int][]Injection, len(fs))
	for _, in := range fs {
		byTick[in.Tick] = append(byTick[in.Tick], in)
	}
	return func(tick int, snap *Snapshot) {
		for _, in := range byTick[tick] {
			in.Apply(snap)
		}
	}
}

// DemoScript returns the fault demo: a sudden altitude loss of 30-40 km at
// tick 10, then at tick 16 a partial 15-20 km recovery combined with a
// negative gyro Y spike of 0.5-0.6 rad/s.
func DemoScript(rng *rand.Rand) FaultScript {
	return FaultScript{
		{Tick: 10, Altitude: uniform(rng, -40.0, -30.0)},
		{Tick: 16, Altitude: uniform(rng, 15.0, 20.0), Gyro: Vec3{0, uniform(rng, -0.6, -0.5), 0}},
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}
