// Package config provides configuration loading and structs for the zhcorpus server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Sampling SamplingConfig `yaml:"sampling"`
	Report   ReportConfig   `yaml:"report"`
	Cache    CacheConfig    `yaml:"cache"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns the per-request timeout.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// StorageConfig holds paths for the corpus database, dictionary database and gloss index.
type StorageConfig struct {
	CorpusDBPath     string `yaml:"corpus_db_path"`
	DictionaryDBPath string `yaml:"dictionary_db_path"`
	GlossIndexPath   string `yaml:"gloss_index_path"`
}

// SamplingConfig bounds sampling and counting.
type SamplingConfig struct {
	DefaultSampleSize int `yaml:"default_sample_size"`
	MaxSampleSize     int `yaml:"max_sample_size"`
	ExcerptRadius     int `yaml:"excerpt_radius"`
	DefaultCountCap   int `yaml:"default_count_cap"`
	MaxCountCap       int `yaml:"max_count_cap"`
	// RankedCap refuses ranked search for terms with at least this many hits.
	RankedCap   int `yaml:"ranked_cap"`
	RankedLimit int `yaml:"ranked_limit"`
}

// ReportConfig holds word report settings.
type ReportConfig struct {
	BriefSampleSize    int `yaml:"brief_sample_size"`
	StandardSampleSize int `yaml:"standard_sample_size"`
	FullSampleSize     int `yaml:"full_sample_size"`
	ContextSegments    int `yaml:"context_segments"`
	CapTotal           int `yaml:"cap_total"`
	CapPerSource       int `yaml:"cap_per_source"`
	TimeoutSeconds     int `yaml:"timeout_seconds"`
}

// Timeout returns the report build timeout.
func (r ReportConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// CacheConfig holds report cache settings. Redis is used only when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// TriggerConfig holds ingestion trigger settings. Empty WatchDir disables the file
// trigger; empty Kafka.Brokers disables the Kafka trigger.
type TriggerConfig struct {
	WatchDir       string      `yaml:"watch_dir"`
	DebounceMillis int         `yaml:"debounce_ms"`
	Kafka          KafkaConfig `yaml:"kafka"`
}

// KafkaConfig holds ingest event consumer settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// EnabledOrDefault returns whether metrics are exposed; defaults to true when unset.
func (m *MetricsConfig) EnabledOrDefault() bool {
	if m.Enabled != nil {
		return *m.Enabled
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.CorpusDBPath = expandPath(cfg.Storage.CorpusDBPath, configDir)
	cfg.Storage.DictionaryDBPath = expandPath(cfg.Storage.DictionaryDBPath, configDir)
	cfg.Storage.GlossIndexPath = expandPath(cfg.Storage.GlossIndexPath, configDir)
	if cfg.Trigger.WatchDir != "" {
		cfg.Trigger.WatchDir = expandPath(cfg.Trigger.WatchDir, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	if c.Sampling.DefaultSampleSize > c.Sampling.MaxSampleSize {
		return fmt.Errorf("sampling.default_sample_size (%d) exceeds max_sample_size (%d)",
			c.Sampling.DefaultSampleSize, c.Sampling.MaxSampleSize)
	}
	if c.Sampling.DefaultCountCap > c.Sampling.MaxCountCap {
		return fmt.Errorf("sampling.default_count_cap (%d) exceeds max_count_cap (%d)",
			c.Sampling.DefaultCountCap, c.Sampling.MaxCountCap)
	}
	if len(c.Trigger.Kafka.Brokers) > 0 && c.Trigger.Kafka.Topic == "" {
		return fmt.Errorf("trigger.kafka.topic is required when brokers are set")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
