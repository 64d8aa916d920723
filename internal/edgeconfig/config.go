// Package edgeconfig loads the edge collector's config.yaml, applies
// environment-variable overrides, and fills in documented defaults.
package edgeconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"

	"github.com/retailpulse/eventpipeline/internal/model"
)

// Point is a raw [x, y] polygon vertex as authored in YAML.
type Point [2]int

// Geometry mirrors the operator-authored screenshot-relative geometry for
// one camera.
type Geometry struct {
	ScreenshotSize [2]int             `yaml:"screenshot_size"`
	Entrance       []Point            `yaml:"entrance"`
	Zones          map[string][]Point `yaml:"zones"`
	Shelves        map[string][]Point `yaml:"shelves"`
	Queue          map[string][]Point `yaml:"queue"`
}

// CameraConfig is one entry in the config.yaml cameras list.
type CameraConfig struct {
	CameraID     string              `yaml:"camera_id"`
	RTSP         string              `yaml:"rtsp"`
	Capabilities []model.Capability  `yaml:"capabilities"`
	Geometry     Geometry            `yaml:"geometry"`
}

// Config is the edge collector's complete configuration.
type Config struct {
	APIBase      string         `yaml:"api_base"`
	APIKey       string         `yaml:"api_key"`
	OrgID        string         `yaml:"org_id"`
	StoreID      string         `yaml:"store_id"`
	BatchSeconds float64        `yaml:"batch_seconds"`
	MaxBatch     int            `yaml:"max_batch"`
	BackoffBase  float64        `yaml:"backoff_base"`
	BackoffMax   float64        `yaml:"backoff_max"`
	BufferDir    string         `yaml:"buffer_dir"`
	LogLevel     string         `yaml:"log_level"`
	DebugPort    int            `yaml:"debug_port"`
	Cameras      []CameraConfig `yaml:"cameras"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton, loading CONFIG_PATH (default
// "config.yaml") on first call.
func Get() *Config {
	once.Do(func() {
		cfg, err := Load(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("edgeconfig: failed to load config file, using defaults", "error", err)
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

// Load reads and parses path without touching the singleton; Get calls it
// on first use, and tests call it directly for explicit config paths.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.APIBase = getEnv("API_BASE", c.APIBase)
	c.APIKey = getEnv("EDGE_API_KEY", c.APIKey)
	c.OrgID = getEnv("ORG_ID", c.OrgID)
	c.StoreID = getEnv("STORE_ID", c.StoreID)
	c.BufferDir = getEnv("BUFFER_DIR", c.BufferDir)
	c.LogLevel = getEnv("EDGE_LOG_LEVEL", c.LogLevel)

	if v := getEnvFloat("BATCH_SECONDS", 0); v > 0 {
		c.BatchSeconds = v
	}
	if v := getEnvInt("MAX_BATCH", 0); v > 0 {
		c.MaxBatch = v
	}
	if v := getEnvFloat("BACKOFF_BASE", 0); v > 0 {
		c.BackoffBase = v
	}
	if v := getEnvFloat("BACKOFF_MAX", 0); v > 0 {
		c.BackoffMax = v
	}
	if v := getEnvInt("DEBUG_PORT", 0); v > 0 {
		c.DebugPort = v
	}
}

func (c *Config) applyDefaults() {
	if c.BatchSeconds == 0 {
		c.BatchSeconds = 2.0
	}
	if c.MaxBatch == 0 {
		c.MaxBatch = 500
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 0.5
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 60
	}
	if c.BufferDir == "" {
		c.BufferDir = "./buffer"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DebugPort == 0 {
		c.DebugPort = 9090
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
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

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
