package config

import "time"

// Default returns a configuration populated with sensible defaults.
// A file loaded by Load overrides these values field by field.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Hardware: HardwareConfig{
			CallTimeout:  3 * time.Second,
			ProbeOnStart: true,
			Input: ClassConfig{
				Timeout:    2 * time.Second,
				Real:       []string{"mqtt:voice-node"},
				DeviceOnly: []string{"exec:laura-stt --once"},
			},
			Output: ClassConfig{
				Timeout:    2 * time.Second,
				Real:       []string{"mqtt:speaker-node"},
				DeviceOnly: []string{"exec:espeak --stdin"},
			},
			Visual: ClassConfig{
				Timeout: 2 * time.Second,
				Real:    []string{"mqtt:esp32-cam"},
				DeviceOnly: []string{
					"exec:laura-gesture --device /dev/video0",
					"exec:laura-gesture --device /dev/video1",
					"exec:laura-gesture --device /dev/video2",
					"exec:laura-gesture --device /dev/video3",
				},
			},
			Motion: ClassConfig{
				Timeout: 2 * time.Second,
				Real: []string{
					"serial:COM3", "serial:COM4", "serial:COM5",
					"serial:COM6", "serial:COM7", "serial:COM8",
					"serial:/dev/ttyUSB0", "serial:/dev/ttyACM0",
				},
			},
			Serial: SerialConfig{
				BaudRate:  9600,
				Enumerate: false,
			},
			Discovery: DiscoveryConfig{
				Enabled: false,
				Service: "_laurabot._tcp",
				Domain:  "local.",
				Timeout: 2 * time.Second,
			},
			Poses: map[string]map[string]int{
				"ready":       {"servo1": 90, "servo2": 90},
				"celebration": {"servo1": 180, "servo2": 0},
				"thinking":    {"servo1": 45, "servo2": 135},
				"correct":     {"servo1": 150, "servo2": 30},
				"incorrect":   {"servo1": 30, "servo2": 150},
				"listening":   {"servo1": 120, "servo2": 60},
			},
		},
		Simulation: SimulationConfig{
			Seed:          42,
			Cadence:       2 * time.Second,
			RingCapacity:  100,
			ListenLatency: 500 * time.Millisecond,
			DemoPhrases:   []string{"hello laura"},
			Sensors: []SensorConfig{
				{ID: "temp_001", Type: "temperature", Unit: "°C", Base: 24, Variance: 2, Location: "living_room"},
				{ID: "temp_002", Type: "temperature", Unit: "°C", Base: 22, Variance: 2, Location: "bedroom"},
				{ID: "hum_001", Type: "humidity", Unit: "%", Base: 55, Variance: 5, Location: "living_room"},
				{ID: "hum_002", Type: "humidity", Unit: "%", Base: 60, Variance: 5, Location: "bathroom"},
				{ID: "air_001", Type: "air_quality", Unit: "AQI", Base: 95, Variance: 15, Location: "living_room"},
				{ID: "noise_001", Type: "noise_level", Unit: "dB", Base: 40, Variance: 8, Location: "living_room"},
				{ID: "light_001", Type: "light_level", Unit: "lux", Base: 400, Variance: 50, Location: "living_room"},
				{ID: "motion_001", Type: "motion_intensity", Unit: "scale", Base: 2, Variance: 1, Location: "entrance"},
				{ID: "gas_001", Type: "gas_level", Unit: "ppm", Base: 10, Variance: 3, Location: "kitchen"},
				{ID: "pressure_001", Type: "pressure", Unit: "hPa", Base: 1013.25, Variance: 5, Location: "outdoor"},
			},
		},
		Alerts: AlertsConfig{
			HistoryCapacity: 50,
			Thresholds: []ThresholdConfig{
				{SensorType: "temperature", Warning: RangeConfig{30, 35}, Critical: RangeConfig{35, 45}},
				{SensorType: "humidity", Warning: RangeConfig{70, 80}, Critical: RangeConfig{80, 95}},
				{SensorType: "air_quality", Warning: RangeConfig{150, 200}, Critical: RangeConfig{200, 300}},
				{SensorType: "noise_level", Warning: RangeConfig{70, 85}, Critical: RangeConfig{85, 100}},
				{SensorType: "light_level", Warning: RangeConfig{100, 200}, Critical: RangeConfig{50, 100}},
				{SensorType: "motion_intensity", Warning: RangeConfig{7, 9}, Critical: RangeConfig{9, 10}},
			},
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/laurabot.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "laurabot-hal",
			},
			QoS:         1,
			TopicPrefix: "laurabot",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Org:           "laurabot",
			Bucket:        "sensors",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Kafka: KafkaConfig{
			Enabled:      false,
			Brokers:      []string{"localhost:9092"},
			Topic:        "laurabot.hardware",
			BatchTimeout: 100 * time.Millisecond,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  120,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:3000"},
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
	}
}
