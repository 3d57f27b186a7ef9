// Package gpio drives the FAIL indicator output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Indicator mirrors the current telemetry status onto a single output.
type Indicator interface {
	// Set drives the output high for FAIL and low for NORMAL.
	// The line is only written when the state changes.
	Set(fail bool) error

	// Close drives the output low and releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultChip    = "gpiochip0"
	DefaultPinFail = 17
)

// edge remembers the last written level so repeated ticks in the same state
// do not touch the line.
type edge struct {
	written bool
	level   bool
}

func (e *edge) changed(level bool) bool {
	if e.written && e.level == level {
		return false
	}
	e.written = true
	e.level = level
	return true
}

func value(level bool) int {
	if level {
		return 1
	}
	return 0
}
