package config

import (
	"os"
	"strconv"
	"time"

	platformstrings "immigo/pkg/platform/strings"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	// AdminToken guards the manual detection-run endpoints. Empty disables them.
	AdminToken string

	// PostgresURL enables the Postgres-backed stores when set; empty keeps
	// everything in memory (dev mode).
	PostgresURL string

	// PolicySourceURL is the base URL of the upstream policy aggregator.
	PolicySourceURL string

	Redis RedisConfig
	Kafka KafkaConfig

	Detect DetectConfig
}

// RedisConfig configures the shared Redis client. Empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the notification publisher. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// DetectConfig tunes the change detection pipeline.
type DetectConfig struct {
	// SweepInterval is how often the scheduler checks every tracked policy key.
	SweepInterval time.Duration
	// RetryBackoff is the delay before retrying after an errored sweep.
	RetryBackoff time.Duration
	// LeaseTTL bounds how long a stalled run can hold a per-key lease.
	LeaseTTL time.Duration
	// MaxParallelKeys caps how many policy keys are processed concurrently.
	MaxParallelKeys int
	// ReconcileAttempts bounds optimistic retries against concurrent user edits.
	ReconcileAttempts int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("IMMIGO_ADDR", ":8080"),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		AdminToken:    os.Getenv("IMMIGO_ADMIN_TOKEN"),
		PostgresURL:   os.Getenv("IMMIGO_POSTGRES_URL"),

		PolicySourceURL: envOr("IMMIGO_POLICY_SOURCE_URL", "http://localhost:9090/policies"),
		Redis: RedisConfig{
			URL:          os.Getenv("IMMIGO_REDIS_URL"),
			PoolSize:     envInt("IMMIGO_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("IMMIGO_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: platformstrings.SplitList(os.Getenv("IMMIGO_KAFKA_BROKERS")),
			Topic:   envOr("IMMIGO_KAFKA_TOPIC", "immigo.policy-notifications"),
		},
		Detect: DetectConfig{
			SweepInterval:     envDuration("IMMIGO_SWEEP_INTERVAL", 24*time.Hour),
			RetryBackoff:      envDuration("IMMIGO_SWEEP_RETRY_BACKOFF", 5*time.Minute),
			LeaseTTL:          envDuration("IMMIGO_LEASE_TTL", 2*time.Minute),
			MaxParallelKeys:   envInt("IMMIGO_MAX_PARALLEL_KEYS", 8),
			ReconcileAttempts: envInt("IMMIGO_RECONCILE_ATTEMPTS", 3),
		},
	}
	if cfg.JWTSigningKey == "" {
		// Dev default, must be overridden in production.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
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

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
