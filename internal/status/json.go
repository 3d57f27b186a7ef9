package status

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/telemetry-bridge/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Running       bool        `json:"running"`
	Current       *ReportJSON `json:"current,omitempty"`
	LastFailTick  *int        `json:"last_fail_tick"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Counts        CountsJSON  `json:"status_counts"`
	Config        ConfigJSON  `json:"config"`
}

// ReportJSON is the JSON representation of the latest report.
// Non-finite readings are encoded as null.
type ReportJSON struct {
	TimeSec      int         `json:"time_sec"`
	AltitudeKm   *float64    `json:"altitude_km"`
	DropKm       *float64    `json:"drop_km"`
	Gyro         [3]*float64 `json:"gyro"`
	Magnetometer [3]*float64 `json:"magnetometer"`
	Status       string      `json:"status"`
	Faults       []string    `json:"faults"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of status counts.
type CountsJSON struct {
	Normal int `json:"normal"`
	Fail   int `json:"fail"`
}

// ConfigJSON is the JSON representation of bridge config.
type ConfigJSON struct {
	IntervalMs        int64   `json:"interval_ms"`
	HeartbeatMs       int64   `json:"heartbeat_ms"`
	NominalAltitudeKm float64 `json:"nominal_altitude_km"`
	AltitudeThreshold float64 `json:"altitude_threshold"`
	GyroThreshold     float64 `json:"gyro_threshold"`
	MagThreshold      float64 `json:"mag_threshold"`
	Faults            string  `json:"faults"`
	Broker            string  `json:"broker"`
	HTTPAddr          string  `json:"http_addr"`
	DBPath            string  `json:"db_path,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Running:       snap.Running(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON{Normal: snap.Counts.Normal, Fail: snap.Counts.Fail},
		Config: ConfigJSON{
			IntervalMs:        snap.Config.IntervalMs,
			HeartbeatMs:       snap.Config.HeartbeatMs,
			NominalAltitudeKm: snap.Config.NominalAltitude,
			AltitudeThreshold: snap.Config.Thresholds.Altitude,
			GyroThreshold:     snap.Config.Thresholds.Gyro,
			MagThreshold:      snap.Config.Thresholds.Mag,
			Faults:            snap.Config.Faults,
			Broker:            snap.Config.Broker,
			HTTPAddr:          snap.Config.HTTPAddr,
			DBPath:            snap.Config.DBPath,
		},
	}
	if snap.Counts.Fail > 0 {
		tick := snap.LastFailTick
		inner.LastFailTick = &tick
	}
	if snap.Last != nil {
		rj := newReportJSON(*snap.Last)
		inner.Current = &rj
	}
	return inner
}

func newReportJSON(r logic.Report) ReportJSON {
	return ReportJSON{
		TimeSec:      r.TimeSec,
		AltitudeKm:   reading(r.Altitude),
		DropKm:       reading(r.Drop),
		Gyro:         axes(r.Gyro),
		Magnetometer: axes(r.Magnetometer),
		Status:       string(r.Status),
		Faults:       r.Flags.Names(),
	}
}

// reading returns nil for NaN and ±Inf, which JSON cannot carry.
func reading(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func axes(v logic.Vec3) [3]*float64 {
	return [3]*float64{reading(v[0]), reading(v[1]), reading(v[2])}
}

// FormatReport returns one report as JSON for live clients.
func FormatReport(r logic.Report) ([]byte, error) {
	data, err := json.Marshal(newReportJSON(r))
	if err != nil {
		return nil, fmt.Errorf("encode report %ds: %w", r.TimeSec, err)
	}
	return data, nil
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return data, nil
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) ([]byte, error) {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, err := json.Marshal(StatusJSON{Status: inner})
	if err != nil {
		return nil, fmt.Errorf("encode %s status: %w", event, err)
	}
	return data, nil
}
