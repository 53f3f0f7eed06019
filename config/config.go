package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Symbols to collect (comma-separated stock codes)
	Symbols string

	// Feed
	FeedMode string // "ws" or "sim"
	FeedURL  string // normalized-event WebSocket URL (ws mode)

	// CSV persistence
	CSVDir      string
	BatchSize   int
	MaxPending  int
	FlushEveryS int // periodic safety flush interval, seconds

	// Indicator tuning
	TickBufferCap   int
	ImbalanceLevels int
	ImbalanceSign   bool // reverse imbalance sign convention
	StochUseBook    bool // widen stochastic range with book extremes
	Ret1sPerSecond  bool // normalize 1s return by elapsed seconds

	// Infrastructure
	RedisAddr     string // empty disables the Redis publisher
	RedisPassword string
	SQLitePath    string // empty disables the SQLite mirror
	MetricsAddr   string

	// Logging
	LogLevel string
	LogFile  string

	// Ring buffer capacity (events)
	RingCap int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Symbols: mustEnv("COLLECT_SYMBOLS"),

		FeedMode: getEnv("FEED_MODE", "ws"),
		FeedURL:  getEnv("FEED_URL", "ws://localhost:9001/ws"),

		CSVDir:      getEnv("CSV_DIR", "data"),
		BatchSize:   getEnvInt("CSV_BATCH_SIZE", 100),
		MaxPending:  getEnvInt("CSV_MAX_PENDING", 5000),
		FlushEveryS: getEnvInt("CSV_FLUSH_EVERY_S", 5),

		TickBufferCap:   getEnvInt("TICK_BUFFER_CAP", 1000),
		ImbalanceLevels: getEnvInt("IMBALANCE_LEVELS", 5),
		ImbalanceSign:   getEnvBool("IMBALANCE_SIGN_REVERSE", false),
		StochUseBook:    getEnvBool("STOCH_USE_BOOK", false),
		Ret1sPerSecond:  getEnvBool("RET1S_PER_SECOND", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		RingCap: getEnvInt("RING_CAP", 8192),
	}
}

// ParseSymbols splits the Symbols string into a deduplicated slice.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	seen := make(map[string]bool, len(parts))
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		symbols = append(symbols, p)
	}
	return symbols
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
