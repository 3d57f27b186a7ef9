// Package metrics exposes per-tick telemetry as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/telemetry-bridge/internal/logic"
)

const namespace = "telemetry"

var axes = [3]string{"x", "y", "z"}

// Collector owns a private registry so tests and multiple bridges in one
// process do not collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	altitude     prometheus.Gauge
	drop         prometheus.Gauge
	gyro         *prometheus.GaugeVec
	magnetometer *prometheus.GaugeVec
	timeSec      prometheus.Gauge
	reports      *prometheus.CounterVec
	faults       *prometheus.CounterVec
	tickDuration prometheus.Histogram
	mqttUp       prometheus.Gauge
}

// New creates a Collector with all metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		altitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "altitude_km",
			Help:      "Altitude reported on the latest tick",
		}),
		drop: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drop_km",
			Help:      "Nominal altitude minus current altitude",
		}),
		gyro: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gyro_rad_per_second",
			Help:      "Angular rate per axis on the latest tick",
		}, []string{"axis"}),
		magnetometer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "magnetometer",
			Help:      "Magnetometer reading per axis on the latest tick",
		}, []string{"axis"}),
		timeSec: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "time_seconds",
			Help:      "Simulated time of the latest tick",
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reports produced, by status",
		}, []string{"status"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Ticks on which each check tripped",
		}, []string{"check"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent handling one tick including sinks",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		mqttUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 if the MQTT broker connection is up",
		}),
	}

	c.registry.MustRegister(
		c.altitude, c.drop, c.gyro, c.magnetometer, c.timeSec,
		c.reports, c.faults, c.tickDuration, c.mqttUp,
	)

	// Expose both statuses from the start so rate() works before the first FAIL.
	c.reports.WithLabelValues(string(logic.StatusNormal))
	c.reports.WithLabelValues(string(logic.StatusFail))

	return c
}

// Observe records one report.
func (c *Collector) Observe(r logic.Report) {
	c.altitude.Set(r.Altitude)
	c.drop.Set(r.Drop)
	c.timeSec.Set(float64(r.TimeSec))
	for i, axis := range axes {
		c.gyro.WithLabelValues(axis).Set(r.Gyro[i])
		c.magnetometer.WithLabelValues(axis).Set(r.Magnetometer[i])
	}
	c.reports.WithLabelValues(string(r.Status)).Inc()
	for _, name := range r.Flags.Names() {
		c.faults.WithLabelValues(name).Inc()
	}
}

// ObserveTick records how long one tick took end to end.
func (c *Collector) ObserveTick(d time.Duration) {
	c.tickDuration.Observe(d.Seconds())
}

// SetMQTTConnected records broker connectivity.
func (c *Collector) SetMQTTConnected(up bool) {
	if up {
		c.mqttUp.Set(1)
	} else {
		c.mqttUp.Set(0)
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
