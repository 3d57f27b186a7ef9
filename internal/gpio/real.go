//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealIndicator drives an LED or relay from an actual GPIO line.
type RealIndicator struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	edge edge
}

// NewRealIndicator requests pin on the named chip as an output, initially low.
func NewRealIndicator(chipName string, pin int) (*RealIndicator, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request FAIL pin %d: %w", pin, err)
	}

	r := &RealIndicator{chip: chip, line: line}
	r.edge.changed(false)
	return r, nil
}

// Set drives the line high for FAIL and low for NORMAL.
func (r *RealIndicator) Set(fail bool) error {
	if !r.edge.changed(fail) {
		return nil
	}
	if err := r.line.SetValue(value(fail)); err != nil {
		r.edge.written = false
		return fmt.Errorf("set FAIL pin: %w", err)
	}
	return nil
}

// Close drives the line low, then returns it to input with pull-down
// (the Pi boot default) before releasing it.
func (r *RealIndicator) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear FAIL pin: %w", err))
		}
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure FAIL pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close FAIL pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}
