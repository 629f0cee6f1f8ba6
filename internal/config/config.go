// Package config loads graphsyncd settings from an optional YAML file and
// GRAPHSYNC_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"graphsync/internal/blob"
	"graphsync/internal/core"
	"graphsync/internal/infra/persistence/dynamodb"
	"graphsync/internal/infra/persistence/httpproxy"
	"graphsync/internal/infra/persistence/postgres"
)

// Config is the full daemon configuration.
type Config struct {
	Storage StorageSection `yaml:"storage"`
	Server  ServerSection  `yaml:"server"`
	Log     LogSection     `yaml:"log"`
	Metrics MetricsSection `yaml:"metrics"`
}

// StorageSection selects and configures the backend.
type StorageSection struct {
	Driver    string `yaml:"driver"`
	Namespace string `yaml:"namespace"`

	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`

	Postgres struct {
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"postgres"`

	DynamoDB struct {
		Region      string `yaml:"region"`
		Endpoint    string `yaml:"endpoint"`
		TablePrefix string `yaml:"table_prefix"`
	} `yaml:"dynamodb"`

	Blob struct {
		Driver    string `yaml:"driver"`
		Root      string `yaml:"root"`
		Bucket    string `yaml:"bucket"`
		Region    string `yaml:"region"`
		Endpoint  string `yaml:"endpoint"`
		PathStyle bool   `yaml:"path_style"`
	} `yaml:"blob"`

	HTTP struct {
		URL      string        `yaml:"url"`
		RetryMax int           `yaml:"retry_max"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"http"`
}

// ServerSection configures the HTTP listener.
type ServerSection struct {
	Listen          string        `yaml:"listen"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogSection configures hclog output and optional file rotation.
type LogSection struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text|json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsSection toggles the Prometheus endpoint and JSON trace output.
type MetricsSection struct {
	Prometheus bool   `yaml:"prometheus"`
	TraceFile  string `yaml:"trace_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	cfg.Storage.Driver = string(core.StorageMemory)
	cfg.Storage.Namespace = "objects"
	cfg.Server.Listen = ":8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 28
	cfg.Metrics.Prometheus = true
	return cfg
}

// Load starts from Default, overlays path when non-empty, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - operator supplied path
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	known := false
	for _, d := range core.StorageDrivers() {
		if string(d) == c.Storage.Driver {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("storage.driver %q is not one of %v", c.Storage.Driver, core.StorageDrivers())
	}
	if c.Storage.Namespace == "" {
		return errors.New("storage.namespace must be set")
	}
	if c.Server.Listen == "" {
		return errors.New("server.listen must be set")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageHTTP:
		if c.Storage.HTTP.URL == "" {
			return errors.New("storage.http.url must be set for the http driver")
		}
	case core.StorageBlob:
		if blob.Driver(c.Storage.Blob.Driver) == blob.DriverS3 && c.Storage.Blob.Bucket == "" {
			return errors.New("storage.blob.bucket must be set for the s3 blob driver")
		}
	}
	return nil
}

// PostgresDSN returns the explicit DSN, or one assembled from the
// connection fields.
func (c Config) PostgresDSN() string {
	p := c.Storage.Postgres
	if p.DSN != "" {
		return p.DSN
	}
	return postgres.Conn{Host: p.Host, Port: p.Port, User: p.User, Password: p.Password, Database: p.Database, SSLMode: p.SSLMode}.DSN()
}

// StorageOptions converts the storage section for core.OpenBackend.
func (c Config) StorageOptions() core.StorageOptions {
	s := c.Storage
	return core.StorageOptions{
		Driver:      core.StorageDriver(s.Driver),
		SQLitePath:  s.SQLite.Path,
		PostgresDSN: c.PostgresDSN(),
		DynamoDB: dynamodb.Config{
			Region:      s.DynamoDB.Region,
			Endpoint:    s.DynamoDB.Endpoint,
			TablePrefix: s.DynamoDB.TablePrefix,
		},
		Blob: blob.Config{
			Driver: blob.Driver(s.Blob.Driver),
			FSRoot: s.Blob.Root,
			S3: blob.S3Config{
				Bucket:    s.Blob.Bucket,
				Region:    s.Blob.Region,
				Endpoint:  s.Blob.Endpoint,
				PathStyle: s.Blob.PathStyle,
			},
		},
		HTTP: httpproxy.Config{
			BaseURL:  s.HTTP.URL,
			RetryMax: s.HTTP.RetryMax,
			Timeout:  s.HTTP.Timeout,
		},
	}
}
