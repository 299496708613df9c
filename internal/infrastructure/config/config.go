package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// envPrefix is prepended to every environment override, e.g. LAURABOT_MQTT_HOST.
const envPrefix = "LAURABOT_"

// Config is the root configuration structure for the Laura-bot hardware engine.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOG_"`
	Hardware   HardwareConfig   `yaml:"hardware" envPrefix:"HARDWARE_"`
	Simulation SimulationConfig `yaml:"simulation" envPrefix:"SIM_"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Database   DatabaseConfig   `yaml:"database" envPrefix:"DATABASE_"`
	MQTT       MQTTConfig       `yaml:"mqtt" envPrefix:"MQTT_"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb" envPrefix:"INFLUXDB_"`
	Kafka      KafkaConfig      `yaml:"kafka" envPrefix:"KAFKA_"`
	API        APIConfig        `yaml:"api" envPrefix:"API_"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	Output string `yaml:"output" env:"OUTPUT"`
}

// HardwareConfig controls capability probing and command routing.
type HardwareConfig struct {
	// CallTimeout bounds every routed device call except listen, which uses
	// the caller-supplied timeout.
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`

	// ProbeOnStart runs the capability probe during startup.
	ProbeOnStart bool `yaml:"probe_on_start" env:"PROBE_ON_START"`

	// ProbeInterval re-runs the probe periodically. Zero disables it.
	ProbeInterval time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`

	Input  ClassConfig `yaml:"input"`
	Output ClassConfig `yaml:"output"`
	Visual ClassConfig `yaml:"visual"`
	Motion ClassConfig `yaml:"motion"`

	Serial    SerialConfig    `yaml:"serial"`
	Discovery DiscoveryConfig `yaml:"discovery"`

	// Poses maps a named pose to servo positions in degrees.
	Poses map[string]map[string]int `yaml:"poses"`

	// Helpers are external processes supervised alongside the engine
	// (vision helpers, serial-to-MQTT bridges).
	Helpers []HelperConfig `yaml:"helpers"`
}

// ClassConfig lists the probe candidates for one capability class.
// Candidates use the "kind:address" form, e.g. "serial:/dev/ttyACM0".
type ClassConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	Real       []string      `yaml:"real"`
	DeviceOnly []string      `yaml:"device_only"`
}

// SerialConfig contains settings for serial-attached microcontrollers.
type SerialConfig struct {
	BaudRate int `yaml:"baud_rate"`

	// Enumerate appends the OS-reported serial ports to the motion real
	// candidates.
	Enumerate bool `yaml:"enumerate"`
}

// DiscoveryConfig contains mDNS discovery settings for network nodes.
type DiscoveryConfig struct {
	Enabled bool          `yaml:"enabled" env:"DISCOVERY_ENABLED"`
	Service string        `yaml:"service"`
	Domain  string        `yaml:"domain"`
	Timeout time.Duration `yaml:"timeout"`
}

// HelperConfig describes a supervised helper process.
type HelperConfig struct {
	Name               string        `yaml:"name"`
	Binary             string        `yaml:"binary"`
	Args               []string      `yaml:"args"`
	RestartOnFailure   bool          `yaml:"restart_on_failure"`
	RestartDelay       time.Duration `yaml:"restart_delay"`
	MaxRestartAttempts int           `yaml:"max_restart_attempts"`
}

// SimulationConfig contains simulation substrate settings.
type SimulationConfig struct {
	Seed         uint64        `yaml:"seed" env:"SEED"`
	Cadence      time.Duration `yaml:"cadence" env:"CADENCE"`
	RingCapacity int           `yaml:"ring_capacity"`

	// ListenLatency is how long simulated voice input takes to "hear" a phrase.
	ListenLatency time.Duration `yaml:"listen_latency"`

	DemoPhrases  []string       `yaml:"demo_phrases"`
	DemoGestures []string       `yaml:"demo_gestures"`
	Sensors      []SensorConfig `yaml:"sensors"`
}

// SensorConfig describes one simulated sensor.
type SensorConfig struct {
	ID       string  `yaml:"id"`
	Type     string  `yaml:"type"`
	Unit     string  `yaml:"unit"`
	Base     float64 `yaml:"base"`
	Variance float64 `yaml:"variance"`
	Location string  `yaml:"location"`
}

// AlertsConfig contains alert evaluator settings.
type AlertsConfig struct {
	HistoryCapacity int               `yaml:"history_capacity"`
	Thresholds      []ThresholdConfig `yaml:"thresholds"`
}

// ThresholdConfig is the warning/critical band for one sensor type.
type ThresholdConfig struct {
	SensorType string      `yaml:"sensor_type"`
	Warning    RangeConfig `yaml:"warning"`
	Critical   RangeConfig `yaml:"critical"`
}

// RangeConfig is an inclusive numeric range.
type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// DatabaseConfig contains SQLite audit database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Path        string `yaml:"path" env:"PATH"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" env:"ENABLED"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	URL           string `yaml:"url" env:"URL"`
	Token         string `yaml:"token" env:"TOKEN"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// KafkaConfig contains settings for the hardware event stream.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	Brokers      []string      `yaml:"brokers" env:"BROKERS"`
	Topic        string        `yaml:"topic" env:"TOPIC"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// APIConfig contains diagnostics HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" env:"ENABLED"`
	Host     string           `yaml:"host" env:"HOST"`
	Port     int              `yaml:"port" env:"PORT"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LAURABOT_SECTION_KEY
// For example: LAURABOT_MQTT_HOST, LAURABOT_SIM_CADENCE
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies LAURABOT_* environment variables on top of cfg.
func applyEnvOverrides(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix})
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Simulation.Cadence <= 0 {
		errs = append(errs, "simulation.cadence must be positive")
	}
	if c.Simulation.RingCapacity < 1 {
		errs = append(errs, "simulation.ring_capacity must be at least 1")
	}
	seen := make(map[string]bool, len(c.Simulation.Sensors))
	for i, s := range c.Simulation.Sensors {
		if s.ID == "" || s.Type == "" {
			errs = append(errs, fmt.Sprintf("simulation.sensors[%d] requires id and type", i))
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("simulation.sensors[%d] duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
	}

	if c.Alerts.HistoryCapacity < 1 {
		errs = append(errs, "alerts.history_capacity must be at least 1")
	}
	for _, t := range c.Alerts.Thresholds {
		if t.Warning.Min > t.Warning.Max || t.Critical.Min > t.Critical.Max {
			errs = append(errs, fmt.Sprintf("alerts.thresholds[%s] range min exceeds max", t.SensorType))
		}
	}

	for class, cc := range c.Hardware.Classes() {
		if cc.Timeout <= 0 {
			errs = append(errs, fmt.Sprintf("hardware.%s.timeout must be positive", class))
		}
		for _, raw := range append(append([]string{}, cc.Real...), cc.DeviceOnly...) {
			if _, err := hal.ParseCandidate(raw); err != nil {
				errs = append(errs, fmt.Sprintf("hardware.%s: %v", class, err))
			}
		}
	}
	if c.Hardware.CallTimeout <= 0 {
		errs = append(errs, "hardware.call_timeout must be positive")
	}
	for name, pose := range c.Hardware.Poses {
		for servo, deg := range pose {
			if deg < 0 || deg > 180 {
				errs = append(errs, fmt.Sprintf("hardware.poses.%s.%s must be 0-180 degrees", name, servo))
			}
		}
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, "kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Classes returns the per-class probe configuration keyed by capability class.
func (h HardwareConfig) Classes() map[hal.CapabilityClass]ClassConfig {
	return map[hal.CapabilityClass]ClassConfig{
		hal.ClassInput:  h.Input,
		hal.ClassOutput: h.Output,
		hal.ClassVisual: h.Visual,
		hal.ClassMotion: h.Motion,
	}
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
