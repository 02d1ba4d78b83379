package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseArgs() []string {
	return []string{
		"--bind", "127.0.0.1:5353",
		"--upstream", "1.1.1.1:53",
		"--exporter", "127.0.0.1:9090",
		"--block", "/tmp/blocklist.txt",
	}
}

func TestParseFlags_Minimal(t *testing.T) {
	cfg, err := ParseFlags("advoid", baseArgs())
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if cfg.Bind != "127.0.0.1:5353" {
		t.Errorf("Bind = %q", cfg.Bind)
	}
	if cfg.Upstream != "1.1.1.1:53" {
		t.Errorf("Upstream = %q", cfg.Upstream)
	}
	if cfg.ForwardLocalZone {
		t.Error("ForwardLocalZone should default to false")
	}
	if cfg.CacheCapacity != 10000 {
		t.Errorf("CacheCapacity = %d, want the 10000 default", cfg.CacheCapacity)
	}
	if cfg.Sink.Backend != SinkNone {
		t.Errorf("Sink.Backend = %q, want none", cfg.Sink.Backend)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestParseFlags_MissingRequired(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no bind", []string{"--upstream", "1.1.1.1", "--exporter", ":9090", "--block", "/b"}},
		{"no upstream", []string{"--bind", ":53", "--exporter", ":9090", "--block", "/b"}},
		{"no exporter", []string{"--bind", ":53", "--upstream", "1.1.1.1", "--block", "/b"}},
		{"no block", []string{"--bind", ":53", "--upstream", "1.1.1.1", "--exporter", ":9090"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFlags("advoid", tt.args); err == nil {
				t.Error("ParseFlags() should fail")
			}
		})
	}
}

func TestParseFlags_SinkS3(t *testing.T) {
	args := append(baseArgs(),
		"--sink", "s3",
		"--s3-bucket", "dns-events",
		"--s3-prefix", "prod",
		"--sink-interval", "5",
		"--sink-batch-size", "500",
	)

	cfg, err := ParseFlags("advoid", args)
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if cfg.Sink.Backend != SinkS3 {
		t.Errorf("Backend = %q", cfg.Sink.Backend)
	}
	if cfg.Sink.S3Bucket != "dns-events" {
		t.Errorf("S3Bucket = %q", cfg.Sink.S3Bucket)
	}
	if cfg.Sink.Interval != 5*time.Second {
		t.Errorf("Interval = %s", cfg.Sink.Interval)
	}
	if cfg.Sink.BatchSize != 500 {
		t.Errorf("BatchSize = %d", cfg.Sink.BatchSize)
	}
}

func TestParseFlags_S3RequiresBucket(t *testing.T) {
	if _, err := ParseFlags("advoid", append(baseArgs(), "--sink", "s3")); err == nil {
		t.Error("s3 sink without a bucket should fail validation")
	}
}

func TestParseFlags_UnknownSink(t *testing.T) {
	if _, err := ParseFlags("advoid", append(baseArgs(), "--sink", "kafka")); err == nil {
		t.Error("Unknown sink backend should fail validation")
	}
}

func TestParseFlags_DatabricksRequiresCredentials(t *testing.T) {
	args := append(baseArgs(),
		"--sink", "databricks",
		"--databricks-host", "https://example.cloud.databricks.com",
	)
	if _, err := ParseFlags("advoid", args); err == nil {
		t.Error("Databricks sink without credentials should fail validation")
	}
}

func TestParseFlags_DatabricksEnvOverride(t *testing.T) {
	t.Setenv("DATABRICKS_HOST", "https://env.cloud.databricks.com")
	t.Setenv("DATABRICKS_CLIENT_ID", "env-client")
	t.Setenv("DATABRICKS_CLIENT_SECRET", "env-secret")
	t.Setenv("DATABRICKS_VOLUME_PATH", "/Volumes/env/dns/events")

	args := append(baseArgs(),
		"--sink", "databricks",
		"--databricks-host", "https://flag.cloud.databricks.com",
		"--databricks-client-id", "flag-client",
		"--databricks-client-secret", "flag-secret",
		"--databricks-volume-path", "/Volumes/flag/dns/events",
	)

	cfg, err := ParseFlags("advoid", args)
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if cfg.Sink.Databricks.Host != "https://env.cloud.databricks.com" {
		t.Errorf("Host = %q, environment should win over flags", cfg.Sink.Databricks.Host)
	}
	if cfg.Sink.Databricks.ClientSecret != "env-secret" {
		t.Errorf("ClientSecret = %q, environment should win over flags", cfg.Sink.Databricks.ClientSecret)
	}
}

func TestParseFlags_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `bind: "0.0.0.0:53"
upstream: "9.9.9.9:53"
exporter: "0.0.0.0:9090"
block: "https://example.com/hosts.txt"
cache_capacity: 500
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := ParseFlags("advoid", []string{"--config", path})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if cfg.Bind != "0.0.0.0:53" {
		t.Errorf("Bind = %q", cfg.Bind)
	}
	if cfg.CacheCapacity != 500 {
		t.Errorf("CacheCapacity = %d", cfg.CacheCapacity)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestParseFlags_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `bind: "0.0.0.0:53"
upstream: "9.9.9.9:53"
exporter: "0.0.0.0:9090"
block: "/etc/blocklist.txt"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := ParseFlags("advoid", []string{"--config", path, "--upstream", "8.8.8.8:53"})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if cfg.Upstream != "8.8.8.8:53" {
		t.Errorf("Upstream = %q, explicit flag should win over the file", cfg.Upstream)
	}
	if cfg.Bind != "0.0.0.0:53" {
		t.Errorf("Bind = %q, file value should survive", cfg.Bind)
	}
}

func TestParseFlags_MissingConfigFile(t *testing.T) {
	if _, err := ParseFlags("advoid", []string{"--config", "/nonexistent.yml"}); err == nil {
		t.Error("Missing config file should fail")
	}
}

func TestValidate_CacheCapacity(t *testing.T) {
	if _, err := ParseFlags("advoid", append(baseArgs(), "--cache-capacity", "0")); err == nil {
		t.Error("Zero cache capacity should fail validation")
	}
}

func TestValidate_SinkInterval(t *testing.T) {
	args := append(baseArgs(),
		"--sink", "s3",
		"--s3-bucket", "b",
		"--sink-interval", "0",
	)
	if _, err := ParseFlags("advoid", args); err == nil {
		t.Error("Zero sink interval should fail validation")
	}
}
