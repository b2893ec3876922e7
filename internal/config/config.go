package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP
	HTTPPort       string
	StreamInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// TimescaleDB
	EnableDB   bool
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	EnableRedis   bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StateTTL      time.Duration

	// History pipeline
	HistoryChannelSize int
	DBBatchSize        int
	DBFlushIntervalMS  int
	DBWriterWorkers    int
	StateWriterWorkers int

	// Monitor
	VesselsFile          string
	FetchTimeout         time.Duration
	DispatchTimeout      time.Duration
	ShutdownGrace        time.Duration
	DefaultCheckInterval time.Duration
	DefaultAlertCooldown time.Duration

	// Data source
	DigitrafficLocationsURL string
	DigitrafficUser         string

	// Auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string
}

func Load() *Config {
	return &Config{
		HTTPPort:                getEnv("HTTP_PORT", "8002"),
		StreamInterval:          getEnvDuration("STREAM_INTERVAL", 5*time.Second),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "text"),
		EnableDB:                getEnvBool("ENABLE_DB", true),
		DBHost:                  getEnv("DB_HOST", "localhost"),
		DBPort:                  getEnv("DB_PORT", "5432"),
		DBUser:                  getEnv("DB_USER", "fleet_user"),
		DBPassword:              getEnv("DB_PASSWORD", "fleet_password"),
		DBName:                  getEnv("DB_NAME", "fleet_monitor"),
		DBMaxConns:              int32(getEnvInt("DB_MAX_CONNS", 10)),
		EnableRedis:             getEnvBool("ENABLE_REDIS", true),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           getEnv("REDIS_PASSWORD", ""),
		RedisDB:                 getEnvInt("REDIS_DB", 0),
		StateTTL:                getEnvDuration("REDIS_STATE_TTL", 30*time.Minute),
		HistoryChannelSize:      getEnvInt("HISTORY_CHANNEL_SIZE", 10000),
		DBBatchSize:             getEnvInt("DB_BATCH_SIZE", 500),
		DBFlushIntervalMS:       getEnvInt("DB_FLUSH_INTERVAL_MS", 1000),
		DBWriterWorkers:         getEnvInt("DB_WRITER_WORKERS", 2),
		StateWriterWorkers:      getEnvInt("STATE_WRITER_WORKERS", 2),
		VesselsFile:             getEnv("VESSELS_FILE", "vessels.json"),
		FetchTimeout:            getEnvDuration("FETCH_TIMEOUT", 20*time.Second),
		DispatchTimeout:         getEnvDuration("DISPATCH_TIMEOUT", 5*time.Second),
		ShutdownGrace:           getEnvDuration("SHUTDOWN_GRACE", 30*time.Second),
		DefaultCheckInterval:    getEnvDuration("DEFAULT_CHECK_INTERVAL", 2*time.Minute),
		DefaultAlertCooldown:    getEnvDuration("DEFAULT_ALERT_COOLDOWN", 30*time.Minute),
		DigitrafficLocationsURL: getEnv("DIGITRAFFIC_LOCATIONS_URL", "https://meri.digitraffic.fi/api/ais/v1/locations"),
		DigitrafficUser:         getEnv("DIGITRAFFIC_USER", "speedwatch/1.0"),
		AuthCacheTTLSeconds:     getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:            strings.Split(getEnv("VALID_API_KEYS", ""), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
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
		return fallback
	}
	return b
}

// getEnvDuration accepts Go durations ("90s", "2m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
