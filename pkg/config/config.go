// Package config loads the server configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/adfharrison1/go-indexdb/pkg/storage"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Storage storage.Config `yaml:"storage"`
	Service ServiceConfig  `yaml:"service"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// ServiceConfig tunes the document service.
type ServiceConfig struct {
	CacheSize   int `yaml:"cache_size" validate:"gte=1"`
	MaxAttempts int `yaml:"max_attempts" validate:"gte=1,lte=100"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: storage.Config{
			Backend:    storage.BackendMemory,
			Durability: "none",
		},
		Service: ServiceConfig{
			CacheSize:   128,
			MaxAttempts: 5,
		},
	}
}

// Load reads path over the defaults and validates the result. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags of every section.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
