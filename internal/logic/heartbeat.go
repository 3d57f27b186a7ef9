package logic

import "time"

// Heartbeat decides when a periodic liveness event is due. It runs on wall
// time, independent of simulated ticks.
type Heartbeat struct {
	interval time.Duration
	start    time.Time
	last     time.Time
}

// HeartbeatData is the content of a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    StatusCounts
}

// NewHeartbeat creates a Heartbeat whose first beat is due one interval
// after start. A zero interval disables it.
func NewHeartbeat(interval time.Duration, start time.Time) *Heartbeat {
	return &Heartbeat{interval: interval, start: start, last: start}
}

// Check returns heartbeat data if the interval has elapsed since the last
// heartbeat (or start), nil otherwise.
func (h *Heartbeat) Check(now time.Time, counts StatusCounts) *HeartbeatData {
	if h.interval <= 0 {
		return nil
	}
	if now.Sub(h.last) < h.interval {
		return nil
	}

	h.last = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.start),
		Counts:    counts,
	}
}
