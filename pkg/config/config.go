package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:db.sqlite"`
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	JWTSecret   string `env:"JWT_SECRET" envDefault:"secret"`

	// Lookup cache; disabled when empty
	RedisURL string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"1h"`

	ImgBBAPIKey   string `env:"IMGBB_API_KEY"`
	ImgBBEndpoint string `env:"IMGBB_ENDPOINT" envDefault:"https://api.imgbb.com/1/upload"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogPath       string `env:"LOG_PATH"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"7"`
	LogCompress   bool   `env:"LOG_COMPRESS" envDefault:"false"`

	ReportWindowDays int    `env:"REPORT_WINDOW_DAYS" envDefault:"7"`
	ReportTopN       int    `env:"REPORT_TOP_N" envDefault:"5"`
	ReportTimezone   string `env:"REPORT_TIMEZONE" envDefault:"UTC"`

	TelemetryQueueSize     int           `env:"TELEMETRY_QUEUE_SIZE" envDefault:"1024"`
	TelemetryWorkers       int           `env:"TELEMETRY_WORKERS" envDefault:"2"`
	TelemetryBatchSize     int           `env:"TELEMETRY_BATCH_SIZE" envDefault:"100"`
	TelemetryFlushInterval time.Duration `env:"TELEMETRY_FLUSH_INTERVAL" envDefault:"2s"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	TrackMaxInFlight   int `env:"TRACK_MAX_IN_FLIGHT" envDefault:"64"`

	// Peers allowed to set X-Forwarded-For / X-Real-IP, as IPs or CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.IsProduction() && cfg.JWTSecret == "secret" {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if _, err := cfg.Proxies(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location is the timezone daily report buckets are cut in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}

// Proxies parses TrustedProxies. A bare address is a single-host prefix.
func (c *Config) Proxies() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", raw, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", raw, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
