package storage

import (
	"context"

	"github.com/sweeney/telemetry-bridge/internal/logic"
)

// FakeRecorder keeps reports in memory for tests.
type FakeRecorder struct {
	// Sessions holds the config passed to each CreateSession, by ID-1.
	Sessions []any

	// Reports holds recorded reports keyed by session ID.
	Reports map[int64][]logic.Report

	// RecordError, if set, will be returned by RecordTick.
	RecordError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeRecorder creates an empty FakeRecorder.
func NewFakeRecorder() *FakeRecorder {
	return &FakeRecorder{Reports: make(map[int64][]logic.Report)}
}

// CreateSession records the config and returns a sequential ID.
func (f *FakeRecorder) CreateSession(ctx context.Context, config any) (int64, error) {
	f.Sessions = append(f.Sessions, config)
	return int64(len(f.Sessions)), nil
}

// RecordTick appends the report to its session.
func (f *FakeRecorder) RecordTick(ctx context.Context, sessionID int64, r logic.Report) error {
	if f.RecordError != nil {
		return f.RecordError
	}
	f.Reports[sessionID] = append(f.Reports[sessionID], r)
	return nil
}

// Close marks the recorder as closed.
func (f *FakeRecorder) Close() error {
	f.Closed = true
	return nil
}
