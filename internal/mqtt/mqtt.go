// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/telemetry-bridge/internal/logic"
)

// Topic is the MQTT topic for per-tick telemetry reports.
const Topic = "spacecraft/telemetry/reports"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "spacecraft/telemetry/system"

// Publisher publishes telemetry reports to MQTT.
type Publisher interface {
	// Publish sends one tick's report to the broker.
	// Returns error if publishing fails (should not stop the simulation).
	Publish(at time.Time, report logic.Report) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Telemetry TelemetryPayload `json:"telemetry"`
}

// TelemetryPayload contains one tick's report. A NaN or infinite reading is
// sent as null; the FAIL status and NON_FINITE fault still describe it.
type TelemetryPayload struct {
	Timestamp    string      `json:"timestamp"`
	TimeSec      int         `json:"time_sec"`
	AltitudeKm   *float64    `json:"altitude_km"`
	DropKm       *float64    `json:"drop_km"`
	Gyro         [3]*float64 `json:"gyro"`
	Magnetometer [3]*float64 `json:"magnetometer"`
	Status       string      `json:"status"`
	Faults       []string    `json:"faults"`
}

func number(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func vector(v logic.Vec3) [3]*float64 {
	return [3]*float64{number(v[0]), number(v[1]), number(v[2])}
}

// FormatPayload creates the JSON payload for a report.
func FormatPayload(at time.Time, r logic.Report) ([]byte, error) {
	payload := Payload{
		Telemetry: TelemetryPayload{
			Timestamp:    at.UTC().Format(time.RFC3339),
			TimeSec:      r.TimeSec,
			AltitudeKm:   number(r.Altitude),
			DropKm:       number(r.Drop),
			Gyro:         vector(r.Gyro),
			Magnetometer: vector(r.Magnetometer),
			Status:       string(r.Status),
			Faults:       r.Flags.Names(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// willPayload is the retained last-will message the broker publishes if the
// bridge drops off without a clean SHUTDOWN.
func willPayload() string {
	data, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE", Reason: "LWT"}})
	return string(data)
}
