// Laura-bot hardware engine.
//
// laurahal probes the robot's hardware at startup, binds each capability
// class (input, output, visual, motion) to the best tier that answers, and
// serves commands, simulated sensors and alerts through the diagnostics API.
// When no hardware is attached every class runs on the simulation substrate,
// so the robot stays fully usable on a bare laptop.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/laurabot-hal/migrations"

	"github.com/nerrad567/laurabot-hal/internal/alert"
	"github.com/nerrad567/laurabot-hal/internal/api"
	"github.com/nerrad567/laurabot-hal/internal/audit"
	"github.com/nerrad567/laurabot-hal/internal/device"
	"github.com/nerrad567/laurabot-hal/internal/deviceio"
	"github.com/nerrad567/laurabot-hal/internal/discovery"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/database"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/influxdb"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/kafka"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/logging"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/mqtt"
	"github.com/nerrad567/laurabot-hal/internal/metrics"
	"github.com/nerrad567/laurabot-hal/internal/probe"
	"github.com/nerrad567/laurabot-hal/internal/process"
	"github.com/nerrad567/laurabot-hal/internal/router"
	"github.com/nerrad567/laurabot-hal/internal/simulation"
	"github.com/nerrad567/laurabot-hal/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application body, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting laurabot-hal", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// Audit trail (optional)
	var db *database.DB
	var recorder *audit.Recorder
	var auditRepo audit.Repository
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		repo := audit.NewSQLiteRepository(db.DB)
		auditRepo = repo
		recorder = audit.NewRecorder(repo, 0)
		recorder.SetLogger(log.Component("audit"))
		recorder.Start(ctx)
		defer recorder.Stop()
		log.Info("audit trail ready", "path", cfg.Database.Path)
	} else {
		log.Info("audit trail disabled")
	}

	// MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Kafka event stream (optional)
	var kafkaPub *kafka.Publisher
	if cfg.Kafka.Enabled {
		kafkaPub, err = kafka.Connect(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("connecting to Kafka: %w", err)
		}
		kafkaPub.SetOnError(func(err error) { log.Error("Kafka publish error", "error", err) })
		defer func() {
			log.Info("closing Kafka publisher")
			if closeErr := kafkaPub.Close(); closeErr != nil {
				log.Error("error closing Kafka", "error", closeErr)
			}
		}()
		log.Info("Kafka publisher ready", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	collector := metrics.New()

	// Hardware helpers start before the probe so the endpoints they own exist.
	helpers := process.NewSupervisor(cfg.Hardware.Helpers)
	if helpers.Len() > 0 {
		helpers.SetLogger(log.Component("helpers"))
		running := helpers.Start(ctx)
		defer helpers.Stop()
		log.Info("hardware helpers started", "running", running, "configured", helpers.Len())
	}

	// Device I/O drivers, one per candidate kind.
	mux := deviceio.NewMux()
	mux.Register(deviceio.KindSerial, deviceio.NewSerialDriver(cfg.Hardware.Serial.BaudRate))
	mux.Register(deviceio.KindExec, deviceio.NewExecDriver())
	if mqttClient != nil {
		mux.Register(deviceio.KindMQTT, deviceio.NewMQTTDriver(mqttClient, mqttClient.QoS()))
	}
	log.Info("device drivers registered", "kinds", mux.Kinds())

	registry := device.NewRegistry(cfg.Simulation.Seed)
	registry.SetLogger(log.Component("registry"))

	plan, err := probe.PlanFromConfig(cfg.Hardware)
	if err != nil {
		return fmt.Errorf("building probe plan: %w", err)
	}
	prober := probe.New(mux, registry, plan, cfg.Simulation.Seed)
	prober.SetLogger(log.Component("probe"))
	prober.SetMetrics(collector)
	if cfg.Hardware.Discovery.Enabled {
		browser := discovery.NewBrowser(cfg.Hardware.Discovery.Service, cfg.Hardware.Discovery.Domain, cfg.Hardware.Discovery.Timeout)
		browser.SetLogger(log.Component("discovery"))
		prober.SetDiscoverer(browser)
	}
	if cfg.Hardware.Serial.Enumerate {
		prober.SetSerialPortLister(deviceio.Ports)
	}

	substrate := simulation.New(simulation.OptionsFromConfig(cfg.Simulation))
	substrate.SetLogger(log.Component("simulation"))
	substrate.SetMetrics(collector)

	cmdRouter := router.New(registry, mux, substrate, router.Config{
		CallTimeout: cfg.Hardware.CallTimeout,
		Poses:       cfg.Hardware.Poses,
	})
	cmdRouter.SetLogger(log.Component("router"))
	cmdMetrics := commandMetrics{collector: collector}
	if influxClient != nil {
		cmdMetrics.series = influxClient
	}
	cmdRouter.SetMetrics(cmdMetrics)

	evaluator := alert.NewEvaluator(alert.ThresholdsFromConfig(cfg.Alerts.Thresholds), cfg.Alerts.HistoryCapacity)
	evaluator.SetLogger(log.Component("alerts"))
	evaluator.SetMetrics(collector)

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	fan := &hardwareEvents{ctx: ctx, hub: hub, log: log.Component("events")}
	if recorder != nil {
		fan.audit = recorder
	}
	if kafkaPub != nil {
		fan.stream = kafkaPub
	}
	registry.OnRebind(fan.onRebind)
	cmdRouter.OnFallback(fan.onFallback)
	prober.OnReport(fan.onProbe)

	pipeline, err := telemetry.New(telemetryDeps(substrate, evaluator, mqttClient, influxClient, kafkaPub, recorder, hub, log))
	if err != nil {
		return fmt.Errorf("creating telemetry pipeline: %w", err)
	}
	if err := pipeline.Start(ctx); err != nil {
		return fmt.Errorf("starting telemetry pipeline: %w", err)
	}
	defer pipeline.Stop()

	substrate.Start(ctx)
	defer substrate.Stop()
	log.Info("simulation substrate started", "sensors", len(substrate.Sensors()), "cadence", cfg.Simulation.Cadence)

	if cfg.Hardware.ProbeOnStart {
		if _, probeErr := prober.Probe(ctx); probeErr != nil {
			log.Warn("startup probe failed, all classes stay simulated", "error", probeErr)
		}
	}
	log.Info("hardware bindings", "report", registry.Report())
	if cfg.Hardware.ProbeInterval > 0 {
		go probeLoop(ctx, prober, cfg.Hardware.ProbeInterval, log)
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log.Component("api"),
			Registry:    registry,
			Router:      cmdRouter,
			Substrate:   substrate,
			Evaluator:   evaluator,
			Prober:      prober,
			Metrics:     collector,
			Telemetry:   pipeline,
			ExternalHub: hub,
			Version:     version,
		}
		if recorder != nil {
			deps.AuditRepo = auditRepo
			deps.Failures = recorder
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if influxClient != nil {
			deps.InfluxDB = influxClient
		}
		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, probe loop exit, substrate,
	// telemetry, helpers, Kafka, InfluxDB, MQTT, audit, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LAURABOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LAURABOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every configured infrastructure connection.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Audit database (nil if disabled)
//   - mqttClient: MQTT client (nil if disabled)
//   - influxClient: InfluxDB client (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// probeLoop re-runs the capability probe every interval until ctx is done.
// Concurrent API-triggered probes share the in-flight run.
func probeLoop(ctx context.Context, p *probe.Prober, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Probe(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("periodic probe failed", "error", err)
			}
		}
	}
}

// telemetryDeps assembles pipeline sinks, leaving absent clients as nil
// interfaces so the pipeline skips them.
func telemetryDeps(
	src *simulation.Substrate,
	eval *alert.Evaluator,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	kafkaPub *kafka.Publisher,
	recorder *audit.Recorder,
	hub *api.Hub,
	log *logging.Logger,
) telemetry.Deps {
	deps := telemetry.Deps{
		Source:    src,
		Evaluator: eval,
		Hub:       hub,
		Logger:    log.Component("telemetry"),
	}
	if mqttClient != nil {
		deps.Broker = mqttClient
	}
	if influxClient != nil {
		deps.Series = influxClient
	}
	if kafkaPub != nil {
		deps.Events = kafkaPub
	}
	if recorder != nil {
		deps.Audit = recorder
	}
	return deps
}
