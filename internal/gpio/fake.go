package gpio

// FakeIndicator is a test double that records line writes.
type FakeIndicator struct {
	// Calls contains every state passed to Set.
	Calls []bool

	// Writes contains the levels actually written to the "line".
	Writes []int

	// SetError, if set, will be returned by Set
	SetError error

	// Closed tracks if Close was called
	Closed bool

	edge edge
}

// NewFakeIndicator creates a FakeIndicator.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

// Set records the call and, on a state change, the written level.
func (f *FakeIndicator) Set(fail bool) error {
	f.Calls = append(f.Calls, fail)
	if f.SetError != nil {
		return f.SetError
	}
	if f.edge.changed(fail) {
		f.Writes = append(f.Writes, value(fail))
	}
	return nil
}

// Lit reports whether the last written level is high.
func (f *FakeIndicator) Lit() bool {
	return f.edge.written && f.edge.level
}

// Close marks the indicator as closed and drives it low.
func (f *FakeIndicator) Close() error {
	f.Closed = true
	if f.Lit() {
		f.Writes = append(f.Writes, 0)
	}
	f.edge = edge{}
	return nil
}
