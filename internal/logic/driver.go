package logic

// Driver owns the single Snapshot and advances it one tick per Step.
// Not safe for concurrent use; the caller ticks it from one goroutine.
type Driver struct {
	cfg     Config
	hook    FaultHook
	snap    Snapshot
	started bool
	counts  StatusCounts
}

// NewDriver creates a Driver in the initializing state. A nil hook means
// NoFaults.
func NewDriver(cfg Config, hook FaultHook) *Driver {
	if hook == nil {
		hook = NoFaults
	}
	return &Driver{
		cfg:  cfg,
		hook: hook,
		snap: NewSnapshot(cfg.NominalAltitude),
	}
}

// Step runs one tick: evolve, inject, evaluate, report. The returned report
// carries the tick number that was just simulated; the next Step simulates
// the following one.
func (d *Driver) Step() Report {
	d.started = true
	t := d.snap.TimeSec

	d.cfg.Evolution.Advance(&d.snap, t)
	d.hook(t, &d.snap)

	flags := Diagnose(d.snap, d.cfg.NominalAltitude, d.cfg.Thresholds)
	status := StatusNormal
	if flags != 0 {
		status = StatusFail
		d.counts.Fail++
	} else {
		d.counts.Normal++
	}

	r := Report{
		TimeSec:      t,
		Altitude:     d.snap.Altitude,
		Drop:         d.snap.Drop(d.cfg.NominalAltitude),
		Gyro:         d.snap.Gyro,
		Magnetometer: d.snap.Magnetometer,
		Status:       status,
		Flags:        flags,
	}

	d.snap.TimeSec++
	return r
}

// Snapshot returns a copy of the current state.
func (d *Driver) Snapshot() Snapshot {
	return d.snap
}

// Config returns the configuration the Driver was built with.
func (d *Driver) Config() Config {
	return d.cfg
}

// IsRunning reports whether at least one tick has been simulated.
func (d *Driver) IsRunning() bool {
	return d.started
}

// Counts returns how many ticks were classified NORMAL and FAIL so far.
func (d *Driver) Counts() StatusCounts {
	return d.counts
}
