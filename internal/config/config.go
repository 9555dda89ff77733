package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment
// variables. It is the single source of truth for runtime parameters.
type Config struct {
	Port string
	Env  string

	DB         DatabaseConfig
	Redis      RedisConfig
	Upstream   UpstreamConfig
	Sync       SyncConfig
	Calculator CalculatorConfig
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// UpstreamConfig contains credentials and limits for the inventory ERP.
type UpstreamConfig struct {
	BaseURL     string
	Token       string
	RateLimit   float64 // requests per second, shared across callers
	HTTPTimeout time.Duration
	RetryCount  int
}

// SyncConfig contains the knobs of the sync engine and its workers.
type SyncConfig struct {
	DefaultWarehouseID string
	Interval           time.Duration // scheduled sync period
	StallTimeout       time.Duration // running logs older than this are swept to failed
	SweepInterval      time.Duration
	ImageSyncTTL       time.Duration
	RunDeadlineMargin  time.Duration // subtracted from Interval to bound one run
}

// CalculatorConfig seeds the general settings singleton on first access.
// Later changes go through the settings API, not the environment.
type CalculatorConfig struct {
	LowStock        int
	LowSales        int
	MedSalesHi      int
	MedStockHi      int
	TargetDays      int
	DefaultNewStock int
	ProductsPerPage int
}

// RunDeadline returns the overall deadline of one sync run.
func (s SyncConfig) RunDeadline() time.Duration {
	d := s.Interval - s.RunDeadlineMargin
	if d <= 0 {
		d = s.Interval
	}
	return d
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Load .env if present; ignore error if file is missing so that production
	// environments relying solely on real environment variables keep working.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")

	// Database
	cfg.DB = DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	// Upstream ERP
	cfg.Upstream = UpstreamConfig{
		BaseURL:     getEnv("UPSTREAM_BASE_URL", ""),
		Token:       getEnv("UPSTREAM_TOKEN", ""),
		RateLimit:   getEnvFloat("RATE_LIMIT_RPS", 5),
		HTTPTimeout: time.Duration(getEnvInt("HTTP_TIMEOUT_SECS", 30)) * time.Second,
		RetryCount:  getEnvInt("UPSTREAM_RETRY_COUNT", 3),
	}

	// Sync engine
	cfg.Sync = SyncConfig{
		DefaultWarehouseID: getEnv("DEFAULT_WAREHOUSE_ID", ""),
		Interval:           time.Duration(getEnvInt("SYNC_INTERVAL_SECS", 86400)) * time.Second,
		StallTimeout:       time.Duration(getEnvInt("STALL_TIMEOUT_SECS", 7200)) * time.Second,
		SweepInterval:      time.Duration(getEnvInt("SWEEP_INTERVAL_SECS", 600)) * time.Second,
		ImageSyncTTL:       time.Duration(getEnvInt("IMAGE_SYNC_TTL_SECS", 86400)) * time.Second,
		RunDeadlineMargin:  60 * time.Second,
	}

	// Calculator tunables (singleton seed values)
	cfg.Calculator = CalculatorConfig{
		LowStock:        getEnvInt("CALC_LOW_STOCK", 5),
		LowSales:        getEnvInt("CALC_LOW_SALES", 3),
		MedSalesHi:      getEnvInt("CALC_MED_SALES_HI", 10),
		MedStockHi:      getEnvInt("CALC_MED_STOCK_HI", 6),
		TargetDays:      getEnvInt("CALC_TARGET_DAYS", 15),
		DefaultNewStock: getEnvInt("CALC_DEFAULT_NEW_STOCK", 10),
		ProductsPerPage: getEnvInt("PRODUCTS_PER_PAGE", 50),
	}

	if cfg.DB.Host == "" || cfg.DB.User == "" || cfg.DB.Name == "" {
		return nil, errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}
	if cfg.Upstream.BaseURL == "" || cfg.Upstream.Token == "" {
		return nil, errors.New("upstream configuration incomplete: ensure UPSTREAM_BASE_URL and UPSTREAM_TOKEN are set")
	}
	if cfg.Upstream.RateLimit <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS must be > 0, got %v", cfg.Upstream.RateLimit)
	}
	if cfg.Sync.Interval < time.Minute {
		return nil, fmt.Errorf("SYNC_INTERVAL_SECS too small: %s", cfg.Sync.Interval)
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// getEnvFloat returns the value of an environment variable as a float or a default if empty/invalid.
func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
