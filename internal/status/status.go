// Package status provides a thread-safe status tracker for the telemetry bridge.
// It is read by HTTP handlers and by the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/telemetry-bridge/internal/logic"
)

// Config contains bridge configuration for display.
type Config struct {
	IntervalMs      int64
	HeartbeatMs     int64
	NominalAltitude float64
	Thresholds      logic.Thresholds
	Faults          string
	Broker          string
	HTTPAddr        string
	DBPath          string
}

// Snapshot is a point-in-time view of bridge state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Last          *logic.Report
	Counts        logic.StatusCounts
	LastFailTick  int // meaningful once Counts.Fail > 0
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the bridge started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Running reports whether at least one tick has been processed.
func (s Snapshot) Running() bool {
	return s.Last != nil
}

// Tracker holds mutable bridge state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update records the latest report and running counts.
// Called from runLoop on every tick.
func (t *Tracker) Update(r logic.Report, counts logic.StatusCounts) {
	t.mu.Lock()
	t.snap.Last = &r
	t.snap.Counts = counts
	if r.Status == logic.StatusFail {
		t.snap.LastFailTick = r.TimeSec
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the bridge state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
