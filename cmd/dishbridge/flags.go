package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/infrastructure/config"
)

// configEnv names the config file when -config is not given.
const configEnv = "DISHBRIDGE_CONFIG"

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// overrides holds command-line values that replace config settings. Only
// flags given on the command line are applied.
type overrides struct {
	fs *flag.FlagSet

	configPath string

	mqttHost     string
	mqttPort     int
	mqttClientID string
	mqttUsername string
	mqttPassword string
	qos          int
	retain       bool

	prefix     string
	dish       string
	schemaFile string

	interval       time.Duration
	once           bool
	flushTimeout   time.Duration
	publishJSON    bool
	publishMissing bool
	fields         stringList

	logLevel string
}

// newOverrides registers the flags of a subcommand. full adds the flags
// that only matter to a running bridge.
func newOverrides(name string, full bool) *overrides {
	o := &overrides{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	fs := o.fs

	fs.StringVar(&o.configPath, "config", "", "path to YAML config file (default $"+configEnv+")")
	fs.StringVar(&o.prefix, "prefix", "", "MQTT topic prefix")
	fs.Var(&o.fields, "field", "telemetry/command field filter; repeatable, comma-separated")

	if !full {
		return o
	}

	fs.StringVar(&o.mqttHost, "mqtt-host", "", "MQTT broker host")
	fs.IntVar(&o.mqttPort, "mqtt-port", 0, "MQTT broker port")
	fs.StringVar(&o.mqttClientID, "client-id", "", "MQTT client id")
	fs.StringVar(&o.mqttUsername, "mqtt-username", "", "MQTT username")
	fs.StringVar(&o.mqttPassword, "mqtt-password", "", "MQTT password")
	fs.IntVar(&o.qos, "qos", 0, "MQTT QoS for publishes and subscriptions")
	fs.BoolVar(&o.retain, "retain", true, "retain telemetry and ack publishes")
	fs.StringVar(&o.dish, "dish", "", "dish gRPC address (host:port)")
	fs.StringVar(&o.schemaFile, "schema-file", "", "binary FileDescriptorSet to use instead of server reflection")
	fs.DurationVar(&o.interval, "interval", 0, "telemetry poll interval")
	fs.BoolVar(&o.once, "once", false, "publish one telemetry snapshot and exit; a failed poll exits non-zero")
	fs.DurationVar(&o.flushTimeout, "flush-timeout", 0, "with -once, how long to wait for the broker to take the snapshot")
	fs.BoolVar(&o.publishJSON, "publish-json", false, "also publish all fields as one JSON document")
	fs.BoolVar(&o.publishMissing, "publish-missing", false, "publish empty payloads for filtered fields the dish did not report")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return o
}

func (o *overrides) parse(args []string) error {
	if err := o.fs.Parse(args); err != nil {
		return err
	}
	if o.fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(o.fs.Args(), " "))
	}
	return nil
}

// load reads the config file, applies the flags given and validates the result.
func (o *overrides) load() (*config.Config, string, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv(configEnv)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}

	o.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("validating flags: %w", err)
	}
	return cfg, path, nil
}

func (o *overrides) apply(cfg *config.Config) {
	o.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "prefix":
			cfg.Topics.Prefix = o.prefix
		case "field":
			cfg.Poll.Fields = append([]string(nil), o.fields...)
		case "mqtt-host":
			cfg.MQTT.Broker.Host = o.mqttHost
		case "mqtt-port":
			cfg.MQTT.Broker.Port = o.mqttPort
		case "client-id":
			cfg.MQTT.Broker.ClientID = o.mqttClientID
		case "mqtt-username":
			cfg.MQTT.Auth.Username = o.mqttUsername
		case "mqtt-password":
			cfg.MQTT.Auth.Password = o.mqttPassword
		case "qos":
			cfg.MQTT.QoS = o.qos
		case "retain":
			cfg.MQTT.Retain = o.retain
		case "dish":
			cfg.Dish.Address = o.dish
		case "schema-file":
			cfg.Dish.SchemaFile = o.schemaFile
		case "interval":
			cfg.Poll.Interval = o.interval
		case "once":
			cfg.Poll.Once = o.once
		case "flush-timeout":
			cfg.Poll.FlushTimeout = o.flushTimeout
		case "publish-json":
			cfg.Poll.PublishJSON = o.publishJSON
		case "publish-missing":
			cfg.Poll.PublishMissing = o.publishMissing
		case "log-level":
			cfg.Logging.Level = o.logLevel
		}
	})
}
