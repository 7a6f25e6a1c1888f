// Package config loads the service configuration. Defaults come from
// Default, are overridden by an optional YAML file and then by environment
// variables, and the result is validated before use.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/zakazai/enrichdb/internal/lookup"
	"github.com/zakazai/enrichdb/internal/storage"
)

// Config holds all application configuration. Nested fields carry their
// full variable name so envconfig finds SERVER_PORT rather than a bare PORT.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Lookup   LookupConfig   `yaml:"lookup"`
	Sink     SinkConfig     `yaml:"sink"`
	Log      LogConfig      `yaml:"log"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port            int           `yaml:"port" envconfig:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"readTimeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SERVER_SHUTDOWN_TIMEOUT"`
}

// StoreConfig names the table ingested records go to.
type StoreConfig struct {
	Table string `yaml:"table" envconfig:"STORE_TABLE"`
}

type IngestConfig struct {
	// ExcludedDomains is a comma separated list in the environment
	ExcludedDomains []string `yaml:"excludedDomains" envconfig:"INGEST_EXCLUDED_DOMAINS"`
}

// LookupConfig holds the enrichment service endpoints and client tuning.
type LookupConfig struct {
	AgeURL         string        `yaml:"ageUrl" envconfig:"LOOKUP_AGE_URL"`
	GenderURL      string        `yaml:"genderUrl" envconfig:"LOOKUP_GENDER_URL"`
	NationalityURL string        `yaml:"nationalityUrl" envconfig:"LOOKUP_NATIONALITY_URL"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"LOOKUP_TIMEOUT"`
	CacheSize      int           `yaml:"cacheSize" envconfig:"LOOKUP_CACHE_SIZE"`
	RateLimit      float64       `yaml:"rateLimit" envconfig:"LOOKUP_RATE_LIMIT"`
	Burst          int           `yaml:"burst" envconfig:"LOOKUP_BURST"`
}

// SinkConfig points at the webhook enriched records are forwarded to. An
// empty URL disables forwarding.
type SinkConfig struct {
	URL     string        `yaml:"url" envconfig:"SINK_URL"`
	Timeout time.Duration `yaml:"timeout" envconfig:"SINK_TIMEOUT"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, error, none
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
	// Format is the log format: text or json
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// SnapshotConfig controls where the store is exported on shutdown. An
// empty path disables export.
type SnapshotConfig struct {
	Type string `yaml:"type" envconfig:"SNAPSHOT_TYPE"`
	Path string `yaml:"path" envconfig:"SNAPSHOT_PATH"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{Table: "Table1"},
		Ingest: IngestConfig{
			ExcludedDomains: []string{"verkada"},
		},
		Lookup: LookupConfig{
			AgeURL:         lookup.DefaultAgeURL,
			GenderURL:      lookup.DefaultGenderURL,
			NationalityURL: lookup.DefaultNationalityURL,
			Timeout:        10 * time.Second,
			CacheSize:      1024,
			RateLimit:      5,
			Burst:          5,
		},
		Sink: SinkConfig{Timeout: 10 * time.Second},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Snapshot: SnapshotConfig{Type: string(storage.JSONSnapshotType)},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := readConfigFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func readConfigFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening config file %v: %w", path, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("error decoding config file %v: %w", path, err)
	}
	return nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.WriteTimeout < 0 {
		errs = append(errs, "SERVER_WRITE_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if strings.TrimSpace(c.Store.Table) == "" {
		errs = append(errs, "STORE_TABLE is required")
	}

	for name, raw := range map[string]string{
		"LOOKUP_AGE_URL":         c.Lookup.AgeURL,
		"LOOKUP_GENDER_URL":      c.Lookup.GenderURL,
		"LOOKUP_NATIONALITY_URL": c.Lookup.NationalityURL,
	} {
		if err := checkURL(raw); err != nil {
			errs = append(errs, fmt.Sprintf("%s %v", name, err))
		}
	}
	if c.Lookup.Timeout <= 0 {
		errs = append(errs, "LOOKUP_TIMEOUT must be positive")
	}
	if c.Lookup.CacheSize <= 0 {
		errs = append(errs, "LOOKUP_CACHE_SIZE must be positive")
	}
	if c.Lookup.RateLimit < 0 {
		errs = append(errs, "LOOKUP_RATE_LIMIT must be non-negative")
	}
	if c.Lookup.RateLimit > 0 && c.Lookup.Burst <= 0 {
		errs = append(errs, "LOOKUP_BURST must be positive when rate limiting is enabled")
	}

	if c.Sink.URL != "" {
		if err := checkURL(c.Sink.URL); err != nil {
			errs = append(errs, fmt.Sprintf("SINK_URL %v", err))
		}
	}
	if c.Sink.Timeout <= 0 {
		errs = append(errs, "SINK_TIMEOUT must be positive")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "none", "off":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be debug, info, warn, error or none, got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}

	switch storage.SnapshotType(c.Snapshot.Type) {
	case storage.JSONSnapshotType, storage.ParquetSnapshotType, storage.SQLiteSnapshotType:
	default:
		errs = append(errs, fmt.Sprintf("SNAPSHOT_TYPE must be json, parquet or sqlite, got %q", c.Snapshot.Type))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http or https URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host, got %q", raw)
	}
	return nil
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// LookupOptions converts the lookup settings for the lookup clients.
func (c *LookupConfig) LookupOptions() lookup.Options {
	return lookup.Options{
		Timeout:   c.Timeout,
		CacheSize: c.CacheSize,
		RateLimit: c.RateLimit,
		Burst:     c.Burst,
	}
}

// String renders the configuration for logging. The sink URL path often
// carries a secret and is masked.
func (c *Config) String() string {
	sink := "disabled"
	if c.Sink.URL != "" {
		sink = maskURL(c.Sink.URL)
	}
	return fmt.Sprintf("server=%s table=%s excluded=%v lookups=[%s %s %s] sink=%s log=%s/%s snapshot=%s:%s",
		c.Server.Addr(), c.Store.Table, c.Ingest.ExcludedDomains,
		c.Lookup.AgeURL, c.Lookup.GenderURL, c.Lookup.NationalityURL,
		sink, c.Log.Level, c.Log.Format, c.Snapshot.Type, c.Snapshot.Path)
}

func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.Path == "" || u.Path == "/" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/***"
}
