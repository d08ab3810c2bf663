package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Display store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Server    ServerConfig
	Inference InferenceConfig
	Samples   SamplesConfig
	Display   DisplayConfig
	Redis     RedisConfig
	Session   SessionConfig
}

type ServerConfig struct {
	Addr            string        `envconfig:"SERVER_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"` // 10MB
}

type InferenceConfig struct {
	URL            string        `envconfig:"INFERENCE_URL" default:"http://127.0.0.1:5000"`
	Timeout        time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"60s"`
	MaxResultBytes int64         `envconfig:"MAX_RESULT_BYTES" default:"20971520"` // 20MB
}

type SamplesConfig struct {
	StaticDir string `envconfig:"STATIC_DIR" default:"./public"`
	// BaseURL switches sample loading to plain GETs against a bundle server.
	BaseURL string `envconfig:"SAMPLES_BASE_URL"`
}

type DisplayConfig struct {
	Store string        `envconfig:"DISPLAY_STORE" default:"memory"`
	TTL   time.Duration `envconfig:"DISPLAY_TTL" default:"30m"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
}

type SessionConfig struct {
	IdleTTL    time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
	SweepEvery time.Duration `envconfig:"SESSION_SWEEP_EVERY" default:"5m"`
	MaxLive    int           `envconfig:"SESSION_MAX" default:"10000"`
}

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express with tags.
func (c *Config) Validate() error {
	switch c.Display.Store {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("DISPLAY_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, c.Display.Store)
	}
	if c.Inference.URL == "" {
		return fmt.Errorf("INFERENCE_URL is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.Inference.MaxResultBytes <= 0 {
		return fmt.Errorf("MAX_RESULT_BYTES must be positive")
	}
	if c.Session.IdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be positive")
	}
	if c.Session.MaxLive <= 0 {
		return fmt.Errorf("SESSION_MAX must be positive")
	}
	if c.Session.SweepEvery <= 0 {
		return fmt.Errorf("SESSION_SWEEP_EVERY must be positive")
	}
	return nil
}
