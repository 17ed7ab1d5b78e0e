package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv keeps main lean.
type Server struct {
	Addr          string
	JWTSigningKey string

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	Resilience ResilienceConfig
	RateLimit  RateLimitConfig
}

// PostgresConfig configures the shared connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the optional Redis client used by the fallback cache.
// An empty URL disables Redis entirely.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event publisher. Empty brokers disable it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// ResilienceConfig carries the documented gateway defaults: 3 attempts,
// 1s base delay, exponential up to a cap.
type ResilienceConfig struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// RateLimitConfig bounds privileged-operation abuse per actor/IP.
type RateLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
	MaxEntries  int
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:          envStr("GATEWAY_ADDR", ":8080"),
		JWTSigningKey: envStr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Postgres: PostgresConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxConns:        envInt("DATABASE_MAX_CONNS", 10),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: envStr("KAFKA_AUDIT_TOPIC", "secureops.audit"),
		},
		Resilience: ResilienceConfig{
			MaxAttempts:      envInt("RESILIENCE_MAX_ATTEMPTS", 3),
			BaseDelay:        envDuration("RESILIENCE_BASE_DELAY", time.Second),
			MaxDelay:         envDuration("RESILIENCE_MAX_DELAY", 8*time.Second),
			BreakerThreshold: envInt("BREAKER_THRESHOLD", 5),
			BreakerCooldown:  envDuration("BREAKER_COOLDOWN", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: envInt("RATE_LIMIT_MAX_ATTEMPTS", 30),
			Window:      envDuration("RATE_LIMIT_WINDOW", time.Minute),
			MaxEntries:  envInt("RATE_LIMIT_MAX_ENTRIES", 10000),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
