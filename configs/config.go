// Package configs builds the single immutable configuration value the
// ingestion and signal binaries are constructed from.
package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration, built once at startup from the
// environment (optionally seeded from a local .env file).
type Config struct {
	DatabaseURL string

	MaxConcurrency     int
	RequestTimeout     time.Duration
	UniverseSize       int
	UniverseRefresh    time.Duration
	SnapshotInterval   time.Duration
	SignalInterval     time.Duration
	StaleThreshold     time.Duration
	SystemStaleAfter   time.Duration
	RegimePersistRuns  int
	RegimeCooldown     time.Duration
	ExitClusterCooldown time.Duration
	AlertQuotaWindow   time.Duration
	AlertQuotaMax      int

	StatsEndpoint string
	InfoEndpoint  string
}

// LoadConfig reads the environment, after an optional .env load for local
// secrets, into a Config, applying documented defaults for every key.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		// A missing .env is not fatal: production deploys set real env vars.
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{
		DatabaseURL:         getenv("DATABASE_URL", "localhost"),
		MaxConcurrency:      getenvInt("MAX_CONCURRENCY", 8),
		RequestTimeout:      getenvSeconds("REQUEST_TIMEOUT_SEC", 15),
		UniverseSize:        getenvInt("UNIVERSE_SIZE", 200),
		UniverseRefresh:     getenvHours("UNIVERSE_REFRESH_HOURS", 6),
		SnapshotInterval:    getenvSeconds("SNAPSHOT_INTERVAL_SEC", 60),
		SignalInterval:      getenvSeconds("SIGNAL_INTERVAL_SEC", 300),
		StaleThreshold:      getenvMinutes("STALE_THRESHOLD_MINUTES", 3),
		SystemStaleAfter:    getenvMinutes("SYSTEM_STALE_AFTER_MINUTES", 10),
		RegimePersistRuns:   getenvInt("REGIME_PERSIST_PERIODS", 2),
		RegimeCooldown:      getenvMinutes("REGIME_COOLDOWN_MINUTES", 30),
		ExitClusterCooldown: getenvMinutes("EXIT_CLUSTER_COOLDOWN_MINUTES", 60),
		AlertQuotaWindow:    getenvHours("ALERT_QUOTA_WINDOW_HOURS", 24),
		AlertQuotaMax:       getenvInt("ALERT_QUOTA_MAX", 4),
		StatsEndpoint:       getenv("HL_STATS_ENDPOINT", "https://stats-data.hyperliquid.xyz"),
		InfoEndpoint:        getenv("HL_INFO_ENDPOINT", "https://api.hyperliquid.xyz"),
	}

	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("MAX_CONCURRENCY must be positive, got %d", cfg.MaxConcurrency)
	}
	if cfg.UniverseSize <= 0 {
		return nil, fmt.Errorf("UNIVERSE_SIZE must be positive, got %d", cfg.UniverseSize)
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(getenvInt(key, defSeconds)) * time.Second
}

func getenvMinutes(key string, defMinutes int) time.Duration {
	return time.Duration(getenvInt(key, defMinutes)) * time.Minute
}

func getenvHours(key string, defHours int) time.Duration {
	return time.Duration(getenvInt(key, defHours)) * time.Hour
}
