package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all service configuration. Values come from an optional YAML
// file overlaid with environment variables.
type Config struct {
	// Environment selects logger behavior: development or production.
	Environment string `env:"ENVIRONMENT" env-default:"development" yaml:"environment"`

	HTTP struct {
		// Addr is the listen address for the API server.
		Addr string `env:"HTTP_ADDR" env-default:":8080" yaml:"addr"`
		// ReadHeaderTimeout bounds header parsing per request.
		ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"5s" yaml:"readHeaderTimeout"`
		// MetricsPath is where the Prometheus handler is mounted.
		MetricsPath string `env:"HTTP_METRICS_PATH" env-default:"/metrics" yaml:"metricsPath"`
	} `yaml:"http"`

	// DatabaseURL is the Postgres DSN. Empty selects the in-memory store.
	DatabaseURL string `env:"DATABASE_URL" yaml:"databaseUrl"`
	// Migrate runs SQL migrations on startup when using Postgres.
	Migrate bool `env:"DB_MIGRATE" env-default:"true" yaml:"migrate"`

	// RedisURL enables the Redis event broker for multi-replica fan-out.
	// Empty selects the in-process broker.
	RedisURL string `env:"REDIS_URL" yaml:"redisUrl"`

	Auth struct {
		// Mode is dev (header/dev-token principals) or hmac (HS256 JWT).
		Mode       string `env:"AUTH_MODE" env-default:"dev" yaml:"mode"`
		HMACSecret string `env:"AUTH_HMAC_SECRET" yaml:"hmacSecret"`
	} `yaml:"auth"`

	Analytics struct {
		// MaxFixesPerUnit bounds the per-unit position history ring.
		MaxFixesPerUnit int `env:"ANALYTICS_MAX_FIXES" env-default:"2048" yaml:"maxFixesPerUnit"`
		// MaxSpeedKph above which consecutive fixes are flagged as anomalies.
		MaxSpeedKph float64 `env:"ANALYTICS_MAX_SPEED_KPH" env-default:"160" yaml:"maxSpeedKph"`
		// IngestRatePerSec limits fix ingestion per tenant.
		IngestRatePerSec float64 `env:"ANALYTICS_INGEST_RATE" env-default:"200" yaml:"ingestRatePerSec"`
		// IngestBurst is the limiter burst size.
		IngestBurst int `env:"ANALYTICS_INGEST_BURST" env-default:"500" yaml:"ingestBurst"`
	} `yaml:"analytics"`

	Webhooks struct {
		MaxAttempts int           `env:"WEBHOOK_MAX_ATTEMPTS" env-default:"10" yaml:"maxAttempts"`
		PollEvery   time.Duration `env:"WEBHOOK_POLL_EVERY" env-default:"1s" yaml:"pollEvery"`
	} `yaml:"webhooks"`

	// SeedFile optionally points at a YAML seed bundle loaded on startup.
	SeedFile string `env:"SEED_FILE" yaml:"seedFile"`
}

// Load reads CONFIG_FILE (or the given path) if present and applies env
// overrides. A missing file is not an error; env alone is a valid setup.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return &cfg, nil
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env config: %w", err)
	}
	return &cfg, nil
}
