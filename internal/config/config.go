package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Ledger storage
	DataFile     string // JSON snapshot path; empty keeps everything in memory
	FlushOnWrite bool   // persist after every mutation instead of on shutdown only

	// Payment gateway simulation
	GatewayMinLatency      time.Duration
	GatewayMaxLatency      time.Duration
	GatewayTimeout         time.Duration
	ConsumptionFailureRate float64
	PaymentFailureRate     float64
	GatewaySeed            int64 // non-zero pins the random source for reproducible runs

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache / idempotency
	CacheTTL       time.Duration
	IdempotencyTTL time.Duration
	RedisAddr      string // empty disables Redis, idempotency falls back to memory

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	UseSupabase        bool

	// JWT / Auth
	JWTSecret string

	// Dev mode
	DevTools bool // DEV_TOOLS=true exposes /v1/dev endpoints
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataFile:     getEnv("LEDGER_DATA_FILE", ""),
		FlushOnWrite: getEnv("LEDGER_FLUSH_ON_WRITE", "true") == "true",

		GatewayMinLatency:      getEnvDuration("GATEWAY_MIN_LATENCY", 100*time.Millisecond),
		GatewayMaxLatency:      getEnvDuration("GATEWAY_MAX_LATENCY", 400*time.Millisecond),
		GatewayTimeout:         getEnvDuration("GATEWAY_TIMEOUT", 2*time.Second),
		ConsumptionFailureRate: getEnvFloat("GATEWAY_CONSUMPTION_FAILURE_RATE", 0.10),
		PaymentFailureRate:     getEnvFloat("GATEWAY_PAYMENT_FAILURE_RATE", 0.05),
		GatewaySeed:            int64(getEnvInt("GATEWAY_SEED", 0)),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL:       getEnvDuration("CACHE_TTL", 5*time.Minute),
		IdempotencyTTL: getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		RedisAddr:      getEnv("REDIS_ADDR", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		UseSupabase:        getEnv("USE_SUPABASE", "false") == "true",

		JWTSecret: getEnv("JWT_SECRET", ""),

		DevTools: getEnv("DEV_TOOLS", "true") == "true",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
