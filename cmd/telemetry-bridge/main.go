// Command telemetry-bridge simulates a spacecraft's altitude, gyro and
// magnetometer channels, classifies each tick as NORMAL or FAIL, and fans the
// reports out to stdout, MQTT, SQLite, a GPIO indicator and an HTTP status page.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/telemetry-bridge/internal/config"
	"github.com/sweeney/telemetry-bridge/internal/gpio"
	"github.com/sweeney/telemetry-bridge/internal/logic"
	"github.com/sweeney/telemetry-bridge/internal/metrics"
	"github.com/sweeney/telemetry-bridge/internal/mqtt"
	"github.com/sweeney/telemetry-bridge/internal/status"
	"github.com/sweeney/telemetry-bridge/internal/storage"
	"github.com/sweeney/telemetry-bridge/internal/web"
)

type options struct {
	cfg         config.Config
	configPath  string
	ticks       int
	printConfig bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("fatal: %v", err)
	}

	if opts.printConfig {
		if err := yaml.NewEncoder(os.Stdout).Encode(opts.cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	if err := run(opts, os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags loads the optional config file, then applies only the flags
// that were set explicitly on top of it.
func parseFlags(args []string) (options, error) {
	def := config.Default()

	fs := flag.NewFlagSet("telemetry-bridge", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (flags override its values)")
	interval := fs.Duration("interval", def.Simulation.Interval, "Wall time between ticks")
	broker := fs.String("broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	heartbeat := fs.Duration("heartbeat", def.MQTT.Heartbeat, "Heartbeat interval (0 to disable)")
	httpAddr := fs.String("http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	dbPath := fs.String("db", def.Storage.Path, "SQLite file to record ticks to (empty to disable)")
	pinFail := fs.Int("pin-fail", def.GPIO.FailPin, fmt.Sprintf("BCM pin for the FAIL indicator, e.g. %d (negative to disable)", gpio.DefaultPinFail))
	faults := fs.String("faults", def.Faults.Mode, "Fault injection: off, demo or script (script reads faults.script from -config)")
	seed := fs.Int64("seed", def.Faults.Seed, "Seed for the demo fault deltas")
	ticks := fs.Int("ticks", 0, "Stop after this many ticks (0 runs until signalled)")
	printConfig := fs.Bool("print-config", false, "Print the effective config as YAML and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg := def
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return options{}, err
		}
		cfg = *loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interval":
			cfg.Simulation.Interval = *interval
		case "broker":
			cfg.MQTT.Broker = *broker
		case "heartbeat":
			cfg.MQTT.Heartbeat = *heartbeat
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "db":
			cfg.Storage.Path = *dbPath
		case "pin-fail":
			cfg.GPIO.FailPin = *pinFail
		case "faults":
			cfg.Faults.Mode = *faults
		case "seed":
			cfg.Faults.Seed = *seed
		}
	})

	if err := cfg.Validate(); err != nil {
		return options{}, fmt.Errorf("invalid flags: %w", err)
	}
	if *ticks < 0 {
		return options{}, fmt.Errorf("invalid flags: -ticks must not be negative, got %d", *ticks)
	}

	return options{cfg: cfg, configPath: *configPath, ticks: *ticks, printConfig: *printConfig}, nil
}

// sinks are the consumers of each tick's report. Only out is required.
type sinks struct {
	out        io.Writer
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Collector
	recorder   storage.Recorder
	sessionID  int64
	indicator  gpio.Indicator
	hub        *web.Hub
}

func run(opts options, out io.Writer) error {
	cfg := opts.cfg
	s := sinks{out: out}

	// Initialize GPIO indicator
	if cfg.GPIO.FailPin >= 0 {
		ind, err := gpio.NewRealIndicator(cfg.GPIO.Chip, cfg.GPIO.FailPin)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer ind.Close()
		s.indicator = ind
		log.Printf("gpio: FAIL indicator on %s pin %d", cfg.GPIO.Chip, cfg.GPIO.FailPin)
	}

	// Initialize recorder
	if cfg.Storage.Path != "" {
		store := storage.NewSqliteStore(cfg.Storage.Path)
		defer store.Close()
		if err := store.Open(); err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		cfgYAML, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode session config: %w", err)
		}
		id, err := store.CreateSession(context.Background(), cfgYAML)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		s.recorder = store
		s.sessionID = id
		log.Printf("storage: recording session %d to %s", id, cfg.Storage.Path)
	}

	// Initialize MQTT
	if cfg.MQTT.Broker != "" {
		publisher := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		defer publisher.Close()
		s.publisher = publisher
		s.mqttStatus = publisher
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	s.tracker = status.NewTracker(time.Now(), status.Config{
		IntervalMs:      cfg.Simulation.Interval.Milliseconds(),
		HeartbeatMs:     cfg.MQTT.Heartbeat.Milliseconds(),
		NominalAltitude: cfg.Simulation.NominalAltitude,
		Thresholds:      cfg.Logic().Thresholds,
		Faults:          cfg.Faults.Mode,
		Broker:          cfg.MQTT.Broker,
		HTTPAddr:        cfg.HTTP.Addr,
		DBPath:          cfg.Storage.Path,
	})
	s.metrics = metrics.New()

	// Publish startup event with full status snapshot
	if s.publisher != nil {
		if err := s.publishStatusEvent(time.Now(), "STARTUP", "", true); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		s.hub = web.NewHub()
		srv := web.New(cfg.HTTP.Addr, s.tracker, s.hub, s.metrics.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	driver := logic.NewDriver(cfg.Logic(), cfg.FaultScript().Hook())

	log.Printf("started: interval=%v faults=%s broker=%q heartbeat=%v",
		cfg.Simulation.Interval, cfg.Faults.Mode, cfg.MQTT.Broker, cfg.MQTT.Heartbeat)

	ticker := time.NewTicker(cfg.Simulation.Interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// The first report is due immediately, not one interval in.
	tick := make(chan time.Time, 1)
	tick <- time.Now()
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case t := <-ticker.C:
				select {
				case tick <- t:
				default:
					// previous tick still being handled
				}
			case <-done:
				return
			}
		}
	}()

	return runLoop(context.Background(), driver, s, cfg.MQTT.Heartbeat, opts.ticks, time.Now, tick, sigCh)
}

// runLoop steps the driver once per tick and hands each report to every
// sink. A failing sink is logged and never stops the simulation. It returns
// when a signal arrives, ctx is done, or maxTicks (if positive) reports have
// been produced.
func runLoop(ctx context.Context, driver *logic.Driver, s sinks, heartbeat time.Duration, maxTicks int, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	hb := logic.NewHeartbeat(heartbeat, now())
	last := logic.Status("")

	for {
		select {
		case sg := <-sig:
			log.Printf("received %v, shutting down", sg)
			s.shutdown(now(), signalName(sg))
			return nil

		case <-ctx.Done():
			log.Printf("context done, shutting down")
			s.shutdown(now(), "CANCELLED")
			return nil

		case <-tick:
			start := now()
			r := driver.Step()

			if _, err := fmt.Fprintln(s.out, logic.FormatLine(r)); err != nil {
				log.Printf("write report: %v", err)
			}
			if r.Status != last {
				if last != "" {
					log.Printf("status: %s -> %s at %ds (faults=%s)", last, r.Status, r.TimeSec, r.Flags)
				}
				last = r.Status
			}

			s.deliver(ctx, start, r, driver.Counts())

			if s.publisher != nil {
				if hbData := hb.Check(now(), driver.Counts()); hbData != nil {
					log.Printf("heartbeat: uptime=%v normal=%d fail=%d",
						hbData.Uptime.Truncate(time.Second), hbData.Counts.Normal, hbData.Counts.Fail)
					if err := s.publishStatusEvent(hbData.Timestamp, "HEARTBEAT", "", false); err != nil {
						log.Printf("heartbeat publish error: %v", err)
					}
				}
			}

			if s.metrics != nil {
				s.metrics.ObserveTick(now().Sub(start))
			}

			if maxTicks > 0 && r.TimeSec+1 >= maxTicks {
				log.Printf("completed %d ticks, shutting down", maxTicks)
				s.shutdown(now(), "COMPLETE")
				return nil
			}
		}
	}
}

// deliver fans one report out to every configured sink.
func (s sinks) deliver(ctx context.Context, at time.Time, r logic.Report, counts logic.StatusCounts) {
	if s.publisher != nil {
		if err := s.publisher.Publish(at, r); err != nil {
			log.Printf("publish error: %v", err)
		}
	}
	if s.recorder != nil {
		if err := s.recorder.RecordTick(ctx, s.sessionID, r); err != nil {
			log.Printf("record error: %v", err)
		}
	}
	if s.indicator != nil {
		if err := s.indicator.Set(r.Status == logic.StatusFail); err != nil {
			log.Printf("gpio error: %v", err)
		}
	}

	connected := s.mqttStatus != nil && s.mqttStatus.IsConnected()
	if s.tracker != nil {
		s.tracker.Update(r, counts)
		s.tracker.SetMQTTConnected(connected)
	}
	if s.metrics != nil {
		s.metrics.Observe(r)
		s.metrics.SetMQTTConnected(connected)
	}
	if s.hub != nil {
		if err := s.hub.Publish(r); err != nil {
			log.Printf("websocket error: %v", err)
		}
	}
}

func (s sinks) shutdown(at time.Time, reason string) {
	if s.indicator != nil {
		if err := s.indicator.Set(false); err != nil {
			log.Printf("gpio error: %v", err)
		}
	}
	if s.publisher == nil {
		return
	}
	if err := s.publishStatusEvent(at, "SHUTDOWN", reason, true); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

// publishStatusEvent sends a system event carrying the full status snapshot
// when a tracker is available. If the snapshot cannot be encoded the bare
// event is sent instead.
func (s sinks) publishStatusEvent(at time.Time, event, reason string, retained bool) error {
	se := mqtt.SystemEvent{
		Timestamp: at,
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if s.tracker != nil {
		if s.mqttStatus != nil {
			s.tracker.SetMQTTConnected(s.mqttStatus.IsConnected())
		}
		raw, err := status.FormatStatusEvent(s.tracker.Snapshot(), event, reason)
		if err != nil {
			log.Printf("%s: %v, sending bare event", event, err)
		}
		se.RawPayload = raw
	}
	return s.publisher.PublishSystem(se)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
