// Package config loads the bridge configuration from an optional YAML file.
// Command-line flags override individual values after loading.
package config

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/telemetry-bridge/internal/logic"
)

// Config is the complete bridge configuration.
type Config struct {
	Simulation Simulation `yaml:"simulation"`
	Thresholds Thresholds `yaml:"thresholds"`
	Faults     Faults     `yaml:"faults"`
	MQTT       MQTT       `yaml:"mqtt"`
	HTTP       HTTP       `yaml:"http"`
	Storage    Storage    `yaml:"storage"`
	GPIO       GPIO       `yaml:"gpio"`
}

// Simulation controls the tick rate and the sensor model.
type Simulation struct {
	Interval        time.Duration `yaml:"interval"`
	NominalAltitude float64       `yaml:"nominalAltitude"`
	DecayBase       float64       `yaml:"decayBase"`
	DecayAmplitude  float64       `yaml:"decayAmplitude"`
	DecayFreq       float64       `yaml:"decayFreq"`
	GyroAmplitude   [3]float64    `yaml:"gyroAmplitude,flow"`
	GyroFreq        [3]float64    `yaml:"gyroFreq,flow"`
}

// Thresholds are the per-channel fault bounds.
type Thresholds struct {
	Altitude float64 `yaml:"altitude"`
	Gyro     float64 `yaml:"gyro"`
	Mag      float64 `yaml:"mag"`
}

// Faults selects the fault-injection mode.
type Faults struct {
	// Mode is "off", "demo" or "script".
	Mode string `yaml:"mode"`
	// Seed feeds the demo's random deltas.
	Seed   int64       `yaml:"seed"`
	Script []Injection `yaml:"script"`
}

// Injection is one scripted fault.
type Injection struct {
	Tick         int        `yaml:"tick"`
	Altitude     float64    `yaml:"altitude"`
	Gyro         [3]float64 `yaml:"gyro,flow"`
	Magnetometer [3]float64 `yaml:"magnetometer,flow"`
}

// MQTT configures the report publisher. An empty Broker disables it.
type MQTT struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"clientId"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// HTTP configures the status server. An empty Addr disables it.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Storage configures the SQLite tick recorder. An empty Path disables it.
type Storage struct {
	Path string `yaml:"path"`
}

// GPIO configures the FAIL indicator line. A negative Pin disables it.
type GPIO struct {
	Chip    string `yaml:"chip"`
	FailPin int    `yaml:"failPin"`
}

// Fault modes.
const (
	FaultsOff    = "off"
	FaultsDemo   = "demo"
	FaultsScript = "script"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	evo := logic.DefaultEvolution()
	return Config{
		Simulation: Simulation{
			Interval:        time.Second,
			NominalAltitude: logic.DefaultNominalAltitude,
			DecayBase:       evo.DecayBase,
			DecayAmplitude:  evo.DecayAmplitude,
			DecayFreq:       evo.DecayFreq,
			GyroAmplitude:   evo.GyroAmplitude,
			GyroFreq:        evo.GyroFreq,
		},
		Thresholds: Thresholds{
			Altitude: logic.DefaultAltitudeThreshold,
			Gyro:     logic.DefaultGyroThreshold,
			Mag:      logic.DefaultMagThreshold,
		},
		Faults: Faults{Mode: FaultsOff},
		MQTT: MQTT{
			ClientID:  "telemetry-bridge",
			Heartbeat: 15 * time.Minute,
		},
		GPIO: GPIO{
			Chip:    "gpiochip0",
			FailPin: -1,
		},
	}
}

// Load reads path on top of Default. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the values a file or flag can get wrong.
func (c *Config) Validate() error {
	var errs []error

	if c.Simulation.Interval <= 0 {
		errs = append(errs, fmt.Errorf("simulation.interval must be positive, got %v", c.Simulation.Interval))
	}
	sim := c.Simulation
	for _, v := range []struct {
		name string
		v    float64
	}{
		{"simulation.nominalAltitude", sim.NominalAltitude},
		{"simulation.decayBase", sim.DecayBase},
		{"simulation.decayAmplitude", sim.DecayAmplitude},
		{"simulation.decayFreq", sim.DecayFreq},
		{"simulation.gyroAmplitude[0]", sim.GyroAmplitude[0]},
		{"simulation.gyroAmplitude[1]", sim.GyroAmplitude[1]},
		{"simulation.gyroAmplitude[2]", sim.GyroAmplitude[2]},
		{"simulation.gyroFreq[0]", sim.GyroFreq[0]},
		{"simulation.gyroFreq[1]", sim.GyroFreq[1]},
		{"simulation.gyroFreq[2]", sim.GyroFreq[2]},
	} {
		if !isFinite(v.v) {
			errs = append(errs, fmt.Errorf("%s must be finite, got %v", v.name, v.v))
		}
	}
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"thresholds.altitude", c.Thresholds.Altitude},
		{"thresholds.gyro", c.Thresholds.Gyro},
		{"thresholds.mag", c.Thresholds.Mag},
	} {
		if !isFinite(th.v) || th.v < 0 {
			errs = append(errs, fmt.Errorf("%s must be a finite non-negative number, got %v", th.name, th.v))
		}
	}

	switch c.Faults.Mode {
	case FaultsOff, FaultsDemo:
	case FaultsScript:
		if len(c.Faults.Script) == 0 {
			errs = append(errs, errors.New("faults.mode script needs at least one faults.script entry (set them in the -config file)"))
		}
		for i, in := range c.Faults.Script {
			if in.Tick < 0 {
				errs = append(errs, fmt.Errorf("faults.script[%d].tick must not be negative, got %d", i, in.Tick))
			}
			if !isFinite(in.Altitude) || !finiteVec(in.Gyro) || !finiteVec(in.Magnetometer) {
				errs = append(errs, fmt.Errorf("faults.script[%d] deltas must be finite", i))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("faults.mode must be one of off, demo, script; got %q", c.Faults.Mode))
	}

	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("mqtt.heartbeat must not be negative, got %v", c.MQTT.Heartbeat))
	}

	return errors.Join(errs...)
}

// Logic returns the Driver configuration.
func (c *Config) Logic() logic.Config {
	return logic.Config{
		NominalAltitude: c.Simulation.NominalAltitude,
		Thresholds: logic.Thresholds{
			Altitude: c.Thresholds.Altitude,
			Gyro:     c.Thresholds.Gyro,
			Mag:      c.Thresholds.Mag,
		},
		Evolution: logic.Evolution{
			DecayBase:      c.Simulation.DecayBase,
			DecayAmplitude: c.Simulation.DecayAmplitude,
			DecayFreq:      c.Simulation.DecayFreq,
			GyroAmplitude:  c.Simulation.GyroAmplitude,
			GyroFreq:       c.Simulation.GyroFreq,
		},
	}
}

// FaultScript returns the injections for the configured mode.
// Mode "off" yields nil; mode "demo" draws its deltas from Seed.
func (c *Config) FaultScript() logic.FaultScript {
	switch c.Faults.Mode {
	case FaultsDemo:
		return logic.DemoScript(rand.New(rand.NewSource(c.Faults.Seed)))
	case FaultsScript:
		fs := make(logic.FaultScript, 0, len(c.Faults.Script))
		for _, in := range c.Faults.Script {
			fs = append(fs, logic.Injection{
				Tick:         in.Tick,
				Altitude:     in.Altitude,
				Gyro:         in.Gyro,
				Magnetometer: in.Magnetometer,
			})
		}
		return fs
	default:
		return nil
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteVec(v [3]float64) bool {
	return isFinite(v[0]) && isFinite(v[1]) && isFinite(v[2])
}
