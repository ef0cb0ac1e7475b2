package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Scraper   ScraperConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
	Events    EventsConfig
	Auth      AuthConfig
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
}

type DatabaseConfig struct {
	Driver string // postgres | sqlite

	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	PoolMaxConns int32

	SQLitePath string
}

type ScraperConfig struct {
	Headless        bool
	MaxPages        int
	NavigateTimeout time.Duration
	PageIdleTimeout time.Duration
}

type RateLimitConfig struct {
	HourlyCap     int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	RedisAddr     string // empty = in-memory state only
	RedisPassword string
}

type SchedulerConfig struct {
	Enabled                 bool
	ScrapeIntervalMin       int
	DescriptionsIntervalMin int
	EnrichmentIntervalMin   int
}

type EventsConfig struct {
	NATSURL       string // empty = enrichment events disabled
	EnrichSubject string
}

type AuthConfig struct {
	JWTSecret string
}

var errMissingRequiredEnv = errors.New("missing required environment variables")

func Load() (Config, error) {
	cfg := Config{}

	var missing []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key, def string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return def
		}
		return v
	}

	cfg.App = AppConfig{
		AppName:     opt("APP_NAME", "jobradar"),
		Environment: opt("APP_ENV", "development"),
		HTTPPort:    req("HTTP_PORT"),
	}

	cfg.Database = DatabaseConfig{
		Driver:       opt("DB_DRIVER", "sqlite"),
		DBHost:       opt("DB_HOST", ""),
		DBPort:       opt("DB_PORT", "5432"),
		DBName:       opt("DB_NAME", ""),
		DBUser:       opt("DB_USER", ""),
		DBPassword:   os.Getenv("DB_PASSWORD"),
		DBSSLMode:    opt("DB_SSL_MODE", "disable"),
		PoolMaxConns: int32(intEnv("DB_POOL_MAX_CONNS", 4)),
		SQLitePath:   opt("SQLITE_PATH", "jobradar.db"),
	}

	cfg.Scraper = ScraperConfig{
		Headless:        boolEnv("SCRAPER_HEADLESS", true),
		MaxPages:        intEnv("SCRAPER_MAX_PAGES", 3),
		NavigateTimeout: durEnv("SCRAPER_NAVIGATE_TIMEOUT", 30*time.Second),
		PageIdleTimeout: durEnv("SCRAPER_PAGE_IDLE_TIMEOUT", 10*time.Second),
	}

	cfg.RateLimit = RateLimitConfig{
		HourlyCap:     intEnv("RATE_LIMIT_HOURLY_CAP", 10),
		BaseDelay:     durEnv("RATE_LIMIT_BASE_DELAY", 2*time.Second),
		MaxDelay:      durEnv("RATE_LIMIT_MAX_DELAY", 5*time.Minute),
		RedisAddr:     opt("REDIS_ADDR", ""),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:                 boolEnv("SCHEDULER_ENABLED", true),
		ScrapeIntervalMin:       intEnv("SCHEDULER_SCRAPE_INTERVAL_MIN", 60),
		DescriptionsIntervalMin: intEnv("SCHEDULER_DESCRIPTIONS_INTERVAL_MIN", 15),
		EnrichmentIntervalMin:   intEnv("SCHEDULER_ENRICHMENT_INTERVAL_MIN", 10),
	}

	cfg.Events = EventsConfig{
		NATSURL:       opt("NATS_URL", ""),
		EnrichSubject: opt("NATS_ENRICH_SUBJECT", "jobs.enrich"),
	}

	cfg.Auth = AuthConfig{
		JWTSecret: strings.TrimSpace(os.Getenv("JWT_SECRET")),
	}

	if d := cfg.Database.Driver; d != "postgres" && d != "sqlite" {
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (postgres|sqlite)", d)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}

	return cfg, nil
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func boolEnv(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func durEnv(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
