// Package config loads the offline gateway configuration from a YAML file
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jonesrussell/offline-gateway/internal/logger"
	"github.com/jonesrussell/offline-gateway/internal/store"
)

// VersionAuto derives the cache version from the manifest hash instead of a
// fixed config value, so a redeployed manifest rolls the store version.
const VersionAuto = "auto"

// Store backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var (
	// ErrMissingOrigin is returned when no origin base URL is configured.
	ErrMissingOrigin = errors.New("origin base URL is required")
	// ErrUnknownBackend is returned for an unrecognized store backend.
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Config holds all configuration for the offline gateway.
type Config struct {
	Service ServiceConfig     `yaml:"service"`
	Origin  OriginConfig      `yaml:"origin"`
	Cache   CacheConfig       `yaml:"cache"`
	Redis   store.RedisConfig `yaml:"redis"`
	Logging logger.Config     `yaml:"logging"`
	CORS    CORSConfig        `yaml:"cors"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Port            int           `yaml:"port"  env:"GATEWAY_PORT"`
	Debug           bool          `yaml:"debug" env:"GATEWAY_DEBUG"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Address returns the listen address in :port form.
func (c *ServiceConfig) Address() string {
	return ":" + strconv.Itoa(c.Port)
}

// OriginConfig describes the single origin the gateway fronts.
type OriginConfig struct {
	// BaseURL is the scheme://host[:port] of the origin site.
	BaseURL string `yaml:"base_url" env:"ORIGIN_BASE_URL"`
	// Timeout bounds origin fetches issued by the gateway's own HTTP
	// client. Zero disables the client-level timeout.
	Timeout time.Duration `yaml:"timeout" env:"ORIGIN_TIMEOUT"`
}

// CacheConfig holds cache worker configuration.
type CacheConfig struct {
	// Backend selects the store implementation: memory or redis.
	Backend string `yaml:"backend" env:"CACHE_BACKEND"`
	// Version names the current store generation. "auto" derives it from
	// the manifest hash.
	Version string `yaml:"version" env:"CACHE_VERSION"`
	// ManifestPath locates the YAML resource manifest.
	ManifestPath string `yaml:"manifest_path" env:"CACHE_MANIFEST"`
	// WatchManifest reinstalls a new store generation when the manifest
	// file changes on disk.
	WatchManifest bool `yaml:"watch_manifest" env:"CACHE_WATCH_MANIFEST"`
	// RefreshPerSecond throttles background revalidations. Zero means a
	// refresh on every cache hit.
	RefreshPerSecond float64 `yaml:"refresh_per_second" env:"CACHE_REFRESH_PER_SECOND"`
}

// CORSConfig holds CORS configuration for the gateway endpoints.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ORIGINS"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// Load loads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := load(path, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "offline-gateway"
	}
	if c.Service.Version == "" {
		c.Service.Version = "dev"
	}
	if c.Service.Port == 0 {
		c.Service.Port = 8090
	}
	if c.Service.ShutdownTimeout == 0 {
		c.Service.ShutdownTimeout = 10 * time.Second
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendMemory
	}
	if c.Cache.Version == "" {
		c.Cache.Version = VersionAuto
	}
	if c.Cache.ManifestPath == "" {
		c.Cache.ManifestPath = "manifest.yml"
	}
	if c.Redis.Address == "" {
		c.Redis.Address = "localhost:6379"
	}
}

// Validate checks the configuration for problems that should stop startup.
func (c *Config) Validate() error {
	if c.Origin.BaseURL == "" {
		return ErrMissingOrigin
	}
	parsed, err := url.Parse(c.Origin.BaseURL)
	if err != nil {
		return fmt.Errorf("parse origin base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("origin base URL %q: scheme and host are required", c.Origin.BaseURL)
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Cache.Backend)
	}

	if c.Cache.RefreshPerSecond < 0 {
		return fmt.Errorf("refresh_per_second must not be negative")
	}
	return nil
}
