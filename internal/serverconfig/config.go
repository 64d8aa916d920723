// Package serverconfig loads the cloud server's config.yaml, applies
// environment-variable overrides, and fills in documented defaults — the
// same load-then-override shape internal/edgeconfig uses for the collector.
package serverconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the ingestion/query/live server's complete configuration.
type Config struct {
	Port             string        `yaml:"port"`
	LogLevel         string        `yaml:"log_level"`
	SupabaseURL      string        `yaml:"supabase_url"`
	SupabaseKey      string        `yaml:"supabase_service_key"`
	DatabaseURL      string        `yaml:"database_url"`
	RedisAddr        string        `yaml:"redis_addr"`
	RedisPassword    string        `yaml:"redis_password"`
	CacheTTLSeconds  float64       `yaml:"cache_ttl_seconds"`
	CacheTTL         time.Duration `yaml:"-"`
	GCPProjectID     string        `yaml:"gcp_project_id"`
	PubSubTopic      string        `yaml:"pubsub_topic"`
	CloudTasksRegion string        `yaml:"cloud_tasks_location"`
	CloudTasksQueue  string        `yaml:"cloud_tasks_queue"`
	AlertWorkers     int           `yaml:"alert_workers"`
	ReadTimeoutSec   int           `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int           `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int           `yaml:"idle_timeout_sec"`
}

// Load reads and parses path, then layers environment overrides and
// defaults on top. Missing path is not an error — an all-defaults config
// still loads, relying entirely on environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("serverconfig: decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("serverconfig: open %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.SupabaseURL = getEnv("SUPABASE_URL", c.SupabaseURL)
	c.SupabaseKey = getEnv("SUPABASE_SERVICE_KEY", c.SupabaseKey)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.GCPProjectID = getEnv("GCP_PROJECT_ID", c.GCPProjectID)
	c.PubSubTopic = getEnv("PUBSUB_TOPIC", c.PubSubTopic)
	c.CloudTasksRegion = getEnv("CLOUD_TASKS_LOCATION", c.CloudTasksRegion)
	c.CloudTasksQueue = getEnv("CLOUD_TASKS_QUEUE", c.CloudTasksQueue)

	if v := getEnvInt("ALERT_WORKERS", 0); v > 0 {
		c.AlertWorkers = v
	}
	if v := getEnvFloat("CACHE_TTL_SECONDS", 0); v > 0 {
		c.CacheTTLSeconds = v
	}
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PubSubTopic == "" {
		c.PubSubTopic = "retailpulse-events"
	}
	if c.CloudTasksRegion == "" {
		c.CloudTasksRegion = "us-central1"
	}
	if c.CloudTasksQueue == "" {
		c.CloudTasksQueue = "alerts"
	}
	if c.AlertWorkers == 0 {
		c.AlertWorkers = 4
	}
	if c.CacheTTLSeconds == 0 {
		c.CacheTTLSeconds = 5
	}
	c.CacheTTL = time.Duration(c.CacheTTLSeconds * float64(time.Second))
	if c.ReadTimeoutSec == 0 {
		c.ReadTimeoutSec = 15
	}
	if c.WriteTimeoutSec == 0 {
		c.WriteTimeoutSec = 30
	}
	if c.IdleTimeoutSec == 0 {
		c.IdleTimeoutSec = 60
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
