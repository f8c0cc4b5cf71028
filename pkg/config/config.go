package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. PREVIEW_SERVER_PORT.
const EnvPrefix = "PREVIEW"

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Control ControlConfig `yaml:"control" envconfig:"CONTROL"`
	Hub     HubConfig     `yaml:"hub" envconfig:"HUB"`
	CORS    CORSConfig    `yaml:"cors" envconfig:"CORS"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	// Sites are project directories registered at startup and reconciled
	// whenever the config file changes.
	Sites []string `yaml:"sites" envconfig:"SITES"`
}

// ServerConfig contains the preview server configuration
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	// Port is tried first; when it is taken the server falls back to an
	// OS-assigned port on the same host.
	Port            int           `yaml:"port" envconfig:"PORT"`
	SyncPath        string        `yaml:"sync_path" envconfig:"SYNC_PATH"`
	ContentPrefix   string        `yaml:"content_prefix" envconfig:"CONTENT_PREFIX"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// ControlConfig contains the control API configuration
type ControlConfig struct {
	Enabled   bool            `yaml:"enabled" envconfig:"ENABLED"`
	Host      string          `yaml:"host" envconfig:"HOST"`
	Port      int             `yaml:"port" envconfig:"PORT"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig limits control API requests per client IP
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" envconfig:"ENABLED"`
	RequestsPerMinute int  `yaml:"requests_per_minute" envconfig:"REQUESTS_PER_MINUTE"`
	BurstSize         int  `yaml:"burst_size" envconfig:"BURST_SIZE"`
}

// HubConfig tunes WebSocket connection handling
type HubConfig struct {
	BroadcastCapacity int           `yaml:"broadcast_capacity" envconfig:"BROADCAST_CAPACITY"`
	WriteTimeout      time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	PongWait          time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
	ReadLimit         int64         `yaml:"read_limit" envconfig:"READ_LIMIT"`
}

// CORSConfig contains CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	AllowedMethods []string `yaml:"allowed_methods" envconfig:"ALLOWED_METHODS"`
	AllowedHeaders []string `yaml:"allowed_headers" envconfig:"ALLOWED_HEADERS"`
	ExposedHeaders []string `yaml:"exposed_headers" envconfig:"EXPOSED_HEADERS"`
	MaxAge         int      `yaml:"max_age" envconfig:"MAX_AGE"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaultConfig()
	cfg.normalize()
	return cfg
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8899,
			SyncPath:        "/api/webgalsync",
			ContentPrefix:   "/game",
			ShutdownTimeout: 5 * time.Second,
		},
		Control: ControlConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8898,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 3000,
				BurstSize:         100,
			},
		},
		Hub: HubConfig{
			BroadcastCapacity: 100,
			WriteTimeout:      10 * time.Second,
			PongWait:          60 * time.Second,
			ReadLimit:         1 << 20,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
			MaxAge:         3600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// normalize puts route prefixes into canonical form: leading slash, no
// trailing slash.
func (c *Config) normalize() {
	c.Server.SyncPath = cleanPrefix(c.Server.SyncPath)
	c.Server.ContentPrefix = cleanPrefix(c.Server.ContentPrefix)
}

func cleanPrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return "/" + strings.Trim(p, "/")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.SyncPath == "" || c.Server.SyncPath == "/" {
		return fmt.Errorf("sync_path is required")
	}

	if c.Server.ContentPrefix == "" || c.Server.ContentPrefix == "/" {
		return fmt.Errorf("content_prefix is required")
	}

	if c.Server.SyncPath == c.Server.ContentPrefix || strings.HasPrefix(c.Server.SyncPath, c.Server.ContentPrefix+"/") {
		return fmt.Errorf("sync_path %q must not live under content_prefix %q", c.Server.SyncPath, c.Server.ContentPrefix)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	if c.Control.Enabled {
		if c.Control.Port < 1 || c.Control.Port > 65535 {
			return fmt.Errorf("invalid control port: %d", c.Control.Port)
		}
		if c.Control.Host == c.Server.Host && c.Control.Port == c.Server.Port {
			return fmt.Errorf("control and server cannot share %s", c.Control.Address())
		}
	}

	if c.Control.RateLimit.Enabled && c.Control.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("rate_limit requests_per_minute must be positive")
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("cors allowed_origins must not be empty")
	}

	if c.Hub.BroadcastCapacity < 1 {
		return fmt.Errorf("invalid broadcast capacity: %d", c.Hub.BroadcastCapacity)
	}

	if c.Hub.WriteTimeout <= 0 {
		return fmt.Errorf("hub write_timeout must be positive")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Address returns the control API address
func (c *ControlConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
