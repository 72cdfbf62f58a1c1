// Package config loads the settings a grove host is built from: logging,
// the resolution depth limit, metrics and shutdown behaviour.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by [Load] and
// [LoadFile].
const EnvPrefix = "GROVE_"

// Config is the typed host configuration.
type Config struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	// LogFormat selects the zap encoder: json for production, console for
	// development.
	LogFormat string `yaml:"log_format" validate:"oneof=json console"`

	// MaxDepth bounds how deeply one object graph may nest.
	MaxDepth int `yaml:"max_depth" validate:"gte=1"`

	// MetricsNamespace prefixes the container metrics. Empty disables them.
	MetricsNamespace string `yaml:"metrics_namespace" validate:"omitempty,excludesall=-."`

	// ParallelSources installs registration sources concurrently.
	ParallelSources bool `yaml:"parallel_sources"`

	// ShutdownTimeout bounds disposal of the root container.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:         "info",
		LogFormat:        "json",
		MaxDepth:         512,
		MetricsNamespace: "grove",
		ShutdownTimeout:  10 * time.Second,
	}
}

var validate = validator.New()

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads the given .env files (".env" when none are given; missing files
// are ignored), then overlays GROVE_* environment variables on [Default].
// Call once at bootstrap:
//
//	cfg, err := config.Load()
func Load(envFiles ...string) (Config, error) {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// Non-fatal: .env may not exist in production
		_ = godotenv.Load(f)
	}

	cfg := Default()
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// LoadFile reads a YAML file over [Default] and then applies environment
// overrides, which take precedence.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = env("LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsNamespace = env("METRICS_NAMESPACE", cfg.MetricsNamespace)

	var err error
	if cfg.MaxDepth, err = envInt("MAX_DEPTH", cfg.MaxDepth); err != nil {
		return err
	}
	if cfg.ParallelSources, err = envBool("PARALLEL_SOURCES", cfg.ParallelSources); err != nil {
		return err
	}
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func env(key, defaultVal string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return i, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return d, nil
}
