// Package config holds the runtime configuration for advoid. Settings come
// from an optional YAML file, command-line flags, and for the Databricks
// credentials a set of environment variable overrides, in that order of
// precedence (later wins).
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sink backend selectors accepted by --sink.
const (
	SinkNone       = ""
	SinkS3         = "s3"
	SinkDatabricks = "databricks"
)

// Config is the full process configuration.
type Config struct {
	// Bind is the DNS listener address (UDP and TCP).
	Bind string `yaml:"bind"`

	// Upstream is the recursive resolver queries are forwarded to.
	Upstream string `yaml:"upstream"`

	// Exporter is the Prometheus /metrics listen address.
	Exporter string `yaml:"exporter"`

	// Block is the blocklist source: a filesystem path or an http(s) URL.
	Block string `yaml:"block"`

	// ForwardLocalZone disables the RFC 6303 gate when true.
	ForwardLocalZone bool `yaml:"forward_local_zone"`

	// OTELEndpoint is an optional OTLP/HTTP trace endpoint.
	OTELEndpoint string `yaml:"otel"`

	// CacheCapacity bounds the per-name decision cache.
	CacheCapacity int64 `yaml:"cache_capacity"`

	Sink    SinkConfig    `yaml:"sink"`
	Logging LoggingConfig `yaml:"logging"`
}

// SinkConfig selects and tunes the event sink.
type SinkConfig struct {
	Backend   string        `yaml:"backend"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`

	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`

	Databricks DatabricksConfig `yaml:"databricks"`
}

// DatabricksConfig carries the client-credentials grant parameters and the
// target volume for the tabular sink.
type DatabricksConfig struct {
	Host         string `yaml:"host"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	VolumePath   string `yaml:"volume_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	FilePath  string `yaml:"file_path"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns a Config with the documented flag defaults applied.
func Default() *Config {
	return &Config{
		CacheCapacity: 10000,
		Sink: SinkConfig{
			Interval:  1 * time.Second,
			BatchSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ParseFlags builds a Config from the command line. A --config file, when
// present, supplies values under the flag defaults; flags given explicitly
// win over the file, and the DATABRICKS_* environment variables win over
// everything for their respective settings.
func ParseFlags(name string, args []string) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	var (
		configPath       = fs.String("config", "", "Optional YAML configuration file")
		bind             = fs.String("bind", "", "DNS listener address (host:port)")
		upstream         = fs.String("upstream", "", "Upstream resolver address (host:port)")
		exporter         = fs.String("exporter", "", "Prometheus exporter address (host:port)")
		block            = fs.String("block", "", "Blocklist source (path or http(s) URL)")
		forwardLocal     = fs.Bool("forward-local-zone", false, "Forward RFC 6303 local-zone queries upstream instead of answering locally")
		otelEndpoint     = fs.String("otel", "", "Optional OTLP/HTTP trace endpoint")
		cacheCapacity    = fs.Int64("cache-capacity", 10000, "Decision cache capacity (entries)")
		sinkBackend      = fs.String("sink", "", "Event sink backend (s3 or databricks; empty disables)")
		s3Bucket         = fs.String("s3-bucket", "", "S3 bucket for the event sink")
		s3Prefix         = fs.String("s3-prefix", "", "Key prefix for the S3 event sink")
		dbxHost          = fs.String("databricks-host", "", "Databricks workspace URL")
		dbxClientID      = fs.String("databricks-client-id", "", "Databricks OAuth client ID")
		dbxClientSecret  = fs.String("databricks-client-secret", "", "Databricks OAuth client secret")
		dbxVolumePath    = fs.String("databricks-volume-path", "", "Databricks volume path for event files")
		sinkIntervalSecs = fs.Int("sink-interval", 1, "Sink flush interval in seconds")
		sinkBatchSize    = fs.Int("sink-batch-size", 1000, "Sink flush batch size")
		logLevel         = fs.String("log-level", "info", "Log level (debug, info, warn, error)")
		logFormat        = fs.String("log-format", "text", "Log format (text or json)")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *configPath != "" {
		loaded, err := Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Only flags the user actually set override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bind":
			cfg.Bind = *bind
		case "upstream":
			cfg.Upstream = *upstream
		case "exporter":
			cfg.Exporter = *exporter
		case "block":
			cfg.Block = *block
		case "forward-local-zone":
			cfg.ForwardLocalZone = *forwardLocal
		case "otel":
			cfg.OTELEndpoint = *otelEndpoint
		case "cache-capacity":
			cfg.CacheCapacity = *cacheCapacity
		case "sink":
			cfg.Sink.Backend = *sinkBackend
		case "s3-bucket":
			cfg.Sink.S3Bucket = *s3Bucket
		case "s3-prefix":
			cfg.Sink.S3Prefix = *s3Prefix
		case "databricks-host":
			cfg.Sink.Databricks.Host = *dbxHost
		case "databricks-client-id":
			cfg.Sink.Databricks.ClientID = *dbxClientID
		case "databricks-client-secret":
			cfg.Sink.Databricks.ClientSecret = *dbxClientSecret
		case "databricks-volume-path":
			cfg.Sink.Databricks.VolumePath = *dbxVolumePath
		case "sink-interval":
			cfg.Sink.Interval = time.Duration(*sinkIntervalSecs) * time.Second
		case "sink-batch-size":
			cfg.Sink.BatchSize = *sinkBatchSize
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		}
	})

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides maps the credentialed-sink flags onto their uppercased
// environment variable counterparts.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABRICKS_HOST"); v != "" {
		cfg.Sink.Databricks.Host = v
	}
	if v := os.Getenv("DATABRICKS_CLIENT_ID"); v != "" {
		cfg.Sink.Databricks.ClientID = v
	}
	if v := os.Getenv("DATABRICKS_CLIENT_SECRET"); v != "" {
		cfg.Sink.Databricks.ClientSecret = v
	}
	if v := os.Getenv("DATABRICKS_VOLUME_PATH"); v != "" {
		cfg.Sink.Databricks.VolumePath = v
	}
}

// Validate checks the configuration for start-up errors. Failures here are
// fatal: the process logs them and exits non-zero.
func (c *Config) Validate() error {
	if c.Bind == "" {
		return fmt.Errorf("bind address is required")
	}
	if c.Upstream == "" {
		return fmt.Errorf("upstream address is required")
	}
	if c.Exporter == "" {
		return fmt.Errorf("exporter address is required")
	}
	if c.Block == "" {
		return fmt.Errorf("blocklist source is required")
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.CacheCapacity)
	}

	switch c.Sink.Backend {
	case SinkNone:
	case SinkS3:
		if c.Sink.S3Bucket == "" {
			return fmt.Errorf("s3 sink requires a bucket")
		}
	case SinkDatabricks:
		d := c.Sink.Databricks
		if d.Host == "" || d.ClientID == "" || d.ClientSecret == "" || d.VolumePath == "" {
			return fmt.Errorf("databricks sink requires host, client id, client secret, and volume path")
		}
	default:
		return fmt.Errorf("unknown sink backend %q", c.Sink.Backend)
	}

	if c.Sink.Backend != SinkNone {
		if c.Sink.Interval <= 0 {
			return fmt.Errorf("sink interval must be positive, got %s", c.Sink.Interval)
		}
		if c.Sink.BatchSize <= 0 {
			return fmt.Errorf("sink batch size must be positive, got %d", c.Sink.BatchSize)
		}
	}

	return nil
}
