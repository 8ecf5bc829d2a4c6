package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// clientIDPrefix starts every generated MQTT client id.
const clientIDPrefix = "starlink-taphome-"

// Config is the root configuration structure for the dish bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Topics   TopicsConfig   `yaml:"topics"`
	Dish     DishConfig     `yaml:"dish"`
	Poll     PollConfig     `yaml:"poll"`
	Backoff  BackoffConfig  `yaml:"backoff"`
	Logging  LoggingConfig  `yaml:"logging"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`

	// KeepAlive is the keepalive interval in seconds.
	KeepAlive int `yaml:"keepalive"`

	// Retain is the retain flag for telemetry, "all" and ack publishes.
	// Status is always retained.
	Retain bool `yaml:"retain"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string    `yaml:"host"`
	Port     int       `yaml:"port"`
	ClientID string    `yaml:"client_id"`
	TLS      TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS settings for the broker connection.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TopicsConfig contains the topic namespace.
type TopicsConfig struct {
	Prefix string `yaml:"prefix"`
}

// DishConfig contains the dish gRPC endpoint settings.
type DishConfig struct {
	Address string `yaml:"address"`

	// SchemaFile is an optional binary FileDescriptorSet used instead of
	// server reflection.
	SchemaFile string `yaml:"schema_file"`

	// RootAlias is the leading command path segment naming the writable
	// configuration root.
	RootAlias string `yaml:"root_alias"`
}

// PollConfig contains telemetry polling settings.
type PollConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Once           bool          `yaml:"once"`
	PublishJSON    bool          `yaml:"publish_json"`
	PublishMissing bool          `yaml:"publish_missing"`

	// FlushTimeout bounds how long a single-shot run waits for the broker
	// to take its telemetry.
	FlushTimeout time.Duration `yaml:"flush_timeout"`

	// Fields restricts published telemetry and command subscriptions.
	// Entries may hold comma-separated paths.
	Fields []string `yaml:"fields"`
}

// BackoffConfig contains retry delay bounds shared by the connect and poll loops.
type BackoffConfig struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// InfluxDBConfig contains InfluxDB connection settings for the telemetry sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// AuditConfig contains the SQLite command audit log settings.
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads configuration and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, when path is not empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DISHBRIDGE_SECTION_KEY
// For example: DISHBRIDGE_MQTT_HOST, DISHBRIDGE_DISH_ADDRESS
//
// The result is validated. Callers applying further overrides (command-line
// flags) should call Validate again afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = DefaultClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults. The MQTT client id is left
// empty; Load fills it with DefaultClientID.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:       1,
			KeepAlive: 60,
			Retain:    true,
		},
		Topics: TopicsConfig{
			Prefix: "taphome/starlink",
		},
		Dish: DishConfig{
			Address:   "192.168.100.1:9200",
			RootAlias: "dish_config",
		},
		Poll: PollConfig{
			Interval:     10 * time.Second,
			FlushTimeout: 10 * time.Second,
		},
		Backoff: BackoffConfig{
			Min: time.Second,
			Max: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Audit: AuditConfig{
			Path:        "./data/dishbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Metrics: MetricsConfig{
			Listen: ":9109",
		},
	}
}

// DefaultClientID derives a stable-per-process client id from the host name
// and process id.
func DefaultClientID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	seed := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fmt.Sprintf("%s-%d", host, os.Getpid())))
	hex := strings.ReplaceAll(seed.String(), "-", "")
	return clientIDPrefix + hex[:8]
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DISHBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("DISHBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DISHBRIDGE_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DISHBRIDGE_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("DISHBRIDGE_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("DISHBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DISHBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Topics
	if v := os.Getenv("DISHBRIDGE_TOPIC_PREFIX"); v != "" {
		cfg.Topics.Prefix = v
	}

	// Dish
	if v := os.Getenv("DISHBRIDGE_DISH_ADDRESS"); v != "" {
		cfg.Dish.Address = v
	}

	// Logging
	if v := os.Getenv("DISHBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// InfluxDB
	if v := os.Getenv("DISHBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keepalive must not be negative")
	}
	if tls := c.MQTT.Broker.TLS; (tls.CertFile == "") != (tls.KeyFile == "") {
		errs = append(errs, "mqtt.broker.tls.cert_file and key_file must be set together")
	}

	// Topics validation
	prefix := strings.Trim(c.Topics.Prefix, "/")
	switch {
	case prefix == "":
		errs = append(errs, "topics.prefix is required")
	case strings.ContainsAny(prefix, "+#"):
		errs = append(errs, "topics.prefix must not contain MQTT wildcards")
	}

	// Dish validation
	if c.Dish.Address == "" {
		errs = append(errs, "dish.address is required")
	}

	// Poll and backoff validation
	if c.Poll.Interval <= 0 {
		errs = append(errs, "poll.interval must be positive")
	}
	if c.Poll.FlushTimeout <= 0 {
		errs = append(errs, "poll.flush_timeout must be positive")
	}
	if c.Backoff.Min <= 0 {
		errs = append(errs, "backoff.min must be positive")
	}
	if c.Backoff.Max < c.Backoff.Min {
		errs = append(errs, "backoff.max must not be less than backoff.min")
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn, or error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	// Optional sinks
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, "audit.path is required when audit is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TopicPrefix returns the topic prefix without surrounding separators.
func (c *Config) TopicPrefix() string {
	return strings.Trim(c.Topics.Prefix, "/")
}

// KeepAliveDuration returns the keepalive interval as a Duration.
func (c MQTTConfig) KeepAliveDuration() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}
