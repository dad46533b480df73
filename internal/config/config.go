package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Firebase Realtime Database
	FirebaseURL  string
	FirebaseAuth string // database secret or access token appended as ?auth=

	// External services
	AgentAPIURL string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL       time.Duration
	ReportCacheTTL time.Duration
	RedisAddr      string
	RedisPassword  string

	// Messaging
	KafkaBrokers      []string
	KafkaPaymentTopic string

	// Observability
	OTLPEndpoint string

	// JWT / Auth
	JWTSecret     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration
	OTPTTL        time.Duration

	// Penalty tiering (loaded, never hard-coded in the rules)
	PenaltySchedule domain.PenaltySchedule

	// Reconciler
	ReconcileInterval time.Duration
	OutboxMaxAttempts int

	// Dev mode
	DevTools bool // DEV_TOOLS=true exposes the synthetic bill generator
}

// LoadDotEnv loads a .env file if present. Missing files are not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		FirebaseURL:  getEnv("FIREBASE_URL", ""),
		FirebaseAuth: getEnv("FIREBASE_AUTH", ""),

		AgentAPIURL: getEnv("AGENT_API_URL", "http://localhost:8090"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL:       getEnvDuration("CACHE_TTL", 5*time.Minute),
		ReportCacheTTL: getEnvDuration("REPORT_CACHE_TTL", 15*time.Minute),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),

		KafkaBrokers:      getEnvList("KAFKA_BROKERS"),
		KafkaPaymentTopic: getEnv("KAFKA_PAYMENT_TOPIC", "absher.payments"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		JWTSecret:     getEnv("JWT_SECRET", "absher-default-dev-secret-change-me"),
		JWTAccessTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		OTPTTL:        getEnvDuration("OTP_TTL", 5*time.Minute),

		PenaltySchedule: getEnvPenaltySchedule("PENALTY_TIERS"),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 30*time.Second),
		OutboxMaxAttempts: getEnvInt("OUTBOX_MAX_ATTEMPTS", 10),

		DevTools: getEnv("DEV_TOOLS", "false") == "true",
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvPenaltySchedule parses a JSON tier array, e.g.
// [{"maxDaysOverdue":30,"rate":0.05},{"maxDaysOverdue":0,"rate":0.15}].
// Falls back to the default schedule on absence or parse failure.
func getEnvPenaltySchedule(key string) domain.PenaltySchedule {
	v := os.Getenv(key)
	if v == "" {
		return domain.DefaultPenaltySchedule()
	}
	var tiers []domain.PenaltyTier
	if err := json.Unmarshal([]byte(v), &tiers); err != nil || len(tiers) == 0 {
		return domain.DefaultPenaltySchedule()
	}
	return domain.PenaltySchedule{Tiers: tiers}
}
