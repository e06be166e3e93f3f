// Package config loads service configuration from file and environment via
// viper. Environment variables use the MOLTPULSE_ prefix with dots replaced
// by underscores (MOLTPULSE_CACHE_TTL overrides cache.ttl). API credentials
// are resolved from the environment only, never from config files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration tree.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Cache     CacheConfig     `mapstructure:"cache"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Runs      RunsConfig      `mapstructure:"runs"`
	Domains   DomainsConfig   `mapstructure:"domains"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig configures the shared response cache.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	Dir string        `mapstructure:"dir"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// RateLimitConfig configures per-source outbound throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ScoringConfig holds the pipeline's tunable scoring inputs. The component
// weights themselves are fixed; only the fallbacks are configurable.
type ScoringConfig struct {
	RecencyFloor      float64 `mapstructure:"recency_floor"`
	NeutralEngagement float64 `mapstructure:"neutral_engagement"`
	HalfLifeDays      float64 `mapstructure:"half_life_days"`
}

// RunsConfig holds run-level defaults the CLI and API can override.
type RunsConfig struct {
	Retries  int  `mapstructure:"retries"`
	DaysBack int  `mapstructure:"days_back"`
	Scraping bool `mapstructure:"scraping"`
	// Deadline bounds a whole run; collectors still in flight when it
	// elapses are abandoned. Zero disables the bound.
	Deadline time.Duration `mapstructure:"deadline"`
}

// DomainsConfig locates the domain and profile definition files.
type DomainsConfig struct {
	Dir string `mapstructure:"dir"`
}

// StorageConfig selects the run-archive blob store.
type StorageConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	Dir      string `mapstructure:"dir"`
}

// DatabaseConfig selects the trace store.
type DatabaseConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// PublisherConfig selects the run-completed event publisher.
type PublisherConfig struct {
	Provider string `mapstructure:"provider"`
	Project  string `mapstructure:"project"`
	Topic    string `mapstructure:"topic"`
}

// LoggingConfig toggles the human-readable development encoder.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MOLTPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("moltpulse")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.moltpulse")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.dir", "")

	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.user_agent", "moltpulse/1.0")

	v.SetDefault("ratelimit.requests_per_second", 4.0)
	v.SetDefault("ratelimit.burst", 2)

	v.SetDefault("scoring.recency_floor", 0.05)
	v.SetDefault("scoring.neutral_engagement", 0.35)
	v.SetDefault("scoring.half_life_days", 30.0)

	v.SetDefault("runs.retries", 0)
	v.SetDefault("runs.days_back", 7)
	v.SetDefault("runs.scraping", false)
	v.SetDefault("runs.deadline", 5*time.Minute)

	v.SetDefault("domains.dir", "domains")

	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.dir", "runs")

	v.SetDefault("database.provider", "memory")

	v.SetDefault("publisher.provider", "noop")
	v.SetDefault("publisher.topic", "moltpulse-runs")

	v.SetDefault("logging.development", false)
}

// Validate rejects configurations that cannot produce a working service.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.Scoring.RecencyFloor < 0 || c.Scoring.RecencyFloor > 1 {
		return fmt.Errorf("scoring.recency_floor must be in [0, 1], got %g", c.Scoring.RecencyFloor)
	}
	if c.Scoring.NeutralEngagement < 0 || c.Scoring.NeutralEngagement > 1 {
		return fmt.Errorf("scoring.neutral_engagement must be in [0, 1], got %g", c.Scoring.NeutralEngagement)
	}
	if c.Scoring.HalfLifeDays <= 0 {
		return fmt.Errorf("scoring.half_life_days must be positive, got %g", c.Scoring.HalfLifeDays)
	}
	if c.Runs.Retries < 0 {
		return fmt.Errorf("runs.retries must be non-negative, got %d", c.Runs.Retries)
	}
	if c.Runs.Deadline < 0 {
		return fmt.Errorf("runs.deadline must be non-negative, got %s", c.Runs.Deadline)
	}
	switch c.Storage.Provider {
	case "local", "memory":
	case "gcs":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	switch c.Database.Provider {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required when database.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown database.provider %q", c.Database.Provider)
	}
	switch c.Publisher.Provider {
	case "noop", "memory":
	case "pubsub":
		if c.Publisher.Project == "" {
			return errors.New("publisher.project is required when publisher.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown publisher.provider %q", c.Publisher.Provider)
	}
	return nil
}

// Credential resolves an API credential by name. MOLTPULSE_-prefixed
// variables win over bare ones so deployments can namespace their secrets.
func Credential(name string) (string, bool) {
	if v := os.Getenv("MOLTPULSE_" + name); v != "" {
		return v, true
	}
	if v := os.Getenv(name); v != "" {
		return v, true
	}
	return "", false
}
