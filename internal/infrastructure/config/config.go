package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Rover Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Robot     RobotConfig     `yaml:"robot"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	MCU       MCUConfig       `yaml:"mcu"`
	Remote    RemoteConfig    `yaml:"remote"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Sound     SoundConfig     `yaml:"sound"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RobotConfig identifies this robot on the wireless link.
type RobotConfig struct {
	Name   string `yaml:"name"`
	Serial string `yaml:"serial"`

	// DefaultConfigFile is an optional robot configuration JSON applied
	// whenever no user configuration is active.
	DefaultConfigFile string `yaml:"default_config_file"`
}

// StorageConfig controls where long messages are kept.
type StorageConfig struct {
	// Dir is the directory used by the file backend.
	Dir string `yaml:"dir"`

	// DurableBackend selects the store for firmware and framework
	// packages: "file" or "sqlite".
	DurableBackend string `yaml:"durable_backend"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MCUConfig contains the serial link settings for the motor controller.
type MCUConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	// ReadTimeout bounds a single serial read, in milliseconds.
	ReadTimeout int `yaml:"read_timeout"`

	// BusyTimeout is how long the MCU may keep answering "busy", in seconds.
	BusyTimeout int `yaml:"busy_timeout"`

	// PingRetry is the delay between startup pings, in milliseconds.
	PingRetry int `yaml:"ping_retry"`
}

// RemoteConfig contains remote controller supervision timeouts (milliseconds).
type RemoteConfig struct {
	FirstFrameTimeout int `yaml:"first_frame_timeout"`
	HeartbeatTimeout  int `yaml:"heartbeat_timeout"`
}

// RuntimeConfig contains the periodic robot loop settings.
type RuntimeConfig struct {
	// UpdateInterval is the MCU status poll period, in milliseconds.
	UpdateInterval int `yaml:"update_interval"`
}

// SoundConfig contains audio playback settings.
type SoundConfig struct {
	AssetsDir     string `yaml:"assets_dir"`
	Player        string `yaml:"player"`
	Mixer         string `yaml:"mixer"`
	DefaultVolume int    `yaml:"default_volume"`
	MaxParallel   int    `yaml:"max_parallel"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP diagnostics server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Used when Output is "file"; sizes are in megabytes, age in days.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ROVER_SECTION_KEY
// For example: ROVER_MCU_PORT, ROVER_STORAGE_DIR
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults for a robot running on
// its own controller board.
func Default() *Config {
	return &Config{
		Robot: RobotConfig{
			Name: "rover",
		},
		Storage: StorageConfig{
			Dir:            "./data/storage",
			DurableBackend: "file",
		},
		Database: DatabaseConfig{
			Path:        "./data/rover.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MCU: MCUConfig{
			Port:        "/dev/serial0",
			Baud:        115200,
			ReadTimeout: 100,
			BusyTimeout: 5,
			PingRetry:   100,
		},
		Remote: RemoteConfig{
			FirstFrameTimeout: 2000,
			HeartbeatTimeout:  500,
		},
		Runtime: RuntimeConfig{
			UpdateInterval: 20,
		},
		Sound: SoundConfig{
			AssetsDir:     "./data/assets",
			Player:        "mpg123",
			Mixer:         "amixer",
			DefaultVolume: 90,
			MaxParallel:   4,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "rover-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix: "rover",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./data/logs/rover.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ROVER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Robot
	if v := os.Getenv("ROVER_ROBOT_NAME"); v != "" {
		cfg.Robot.Name = v
	}
	if v := os.Getenv("ROVER_ROBOT_SERIAL"); v != "" {
		cfg.Robot.Serial = v
	}

	// Storage
	if v := os.Getenv("ROVER_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("ROVER_STORAGE_DURABLE_BACKEND"); v != "" {
		cfg.Storage.DurableBackend = v
	}

	// Database
	if v := os.Getenv("ROVER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MCU
	if v := os.Getenv("ROVER_MCU_PORT"); v != "" {
		cfg.MCU.Port = v
	}
	if v := os.Getenv("ROVER_MCU_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.MCU.Baud = baud
		}
	}

	// MQTT
	if v := os.Getenv("ROVER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ROVER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ROVER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ROVER_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("ROVER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ROVER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Robot.Name == "" {
		errs = append(errs, "robot.name is required")
	}

	switch c.Storage.DurableBackend {
	case "file", "sqlite":
	default:
		errs = append(errs, "storage.durable_backend must be \"file\" or \"sqlite\"")
	}
	if c.Storage.DurableBackend == "file" && c.Storage.Dir == "" {
		errs = append(errs, "storage.dir is required for the file backend")
	}
	if c.Storage.DurableBackend == "sqlite" && c.Database.Path == "" {
		errs = append(errs, "database.path is required for the sqlite backend")
	}

	if c.MCU.Port == "" {
		errs = append(errs, "mcu.port is required")
	}
	if c.MCU.Baud <= 0 {
		errs = append(errs, "mcu.baud must be positive")
	}
	if c.MCU.PingRetry <= 0 {
		errs = append(errs, "mcu.ping_retry must be positive")
	}

	if c.Remote.FirstFrameTimeout <= 0 || c.Remote.HeartbeatTimeout <= 0 {
		errs = append(errs, "remote timeouts must be positive")
	}

	if c.Runtime.UpdateInterval <= 0 {
		errs = append(errs, "runtime.update_interval must be positive")
	}

	if c.Sound.DefaultVolume < 0 || c.Sound.DefaultVolume > 100 {
		errs = append(errs, "sound.default_volume must be between 0 and 100")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is \"file\"")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// UpdateInterval returns the periodic robot loop period.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.Runtime.UpdateInterval) * time.Millisecond
}

// PingRetryDelay returns the delay between startup pings.
func (c *Config) PingRetryDelay() time.Duration {
	return time.Duration(c.MCU.PingRetry) * time.Millisecond
}

// FirstFrameTimeout returns how long the remote scheduler waits for the first frame.
func (c *Config) FirstFrameTimeout() time.Duration {
	return time.Duration(c.Remote.FirstFrameTimeout) * time.Millisecond
}

// HeartbeatTimeout returns how long the remote scheduler waits between frames.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Remote.HeartbeatTimeout) * time.Millisecond
}
