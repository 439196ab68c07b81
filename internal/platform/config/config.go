package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// PIIPolicy controls how analytics ingestion reacts to detected PII.
// Resolved once at startup so call sites never compare environment strings.
type PIIPolicy string

const (
	// PolicyStrict rejects the track call with an error. Used in development
	// so integration bugs surface before release.
	PolicyStrict PIIPolicy = "strict"

	// PolicyPermissive silently drops the event but leaves a breadcrumb.
	// Used in production so producer bugs never break user flows.
	PolicyPermissive PIIPolicy = "permissive"
)

// Config captures everything cmd/server needs to wire the ledger core.
type Config struct {
	Addr        string
	Environment string

	PostgresURL string
	Redis       RedisConfig

	// HashSecret keys the HMAC used for analytics identity hashing.
	// Must be stable across deployments or cohort analysis breaks.
	HashSecret string

	PIIMode PIIPolicy

	AuditRetention     time.Duration
	AnalyticsRetention time.Duration
	RetentionInterval  time.Duration
	RetentionDryRun    bool

	// KafkaBrokers enables the domain-event Kafka sink when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	OTelEndpoint string
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis
// and the core falls back to in-process locks.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Defaults chosen to satisfy the compliance retention policy: audit entries
// are kept one year, analytics events ninety days.
const (
	DefaultAuditRetention     = 365 * 24 * time.Hour
	DefaultAnalyticsRetention = 90 * 24 * time.Hour
	DefaultRetentionInterval  = time.Hour
)

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:               envOr("TALLY_ADDR", ":8080"),
		Environment:        envOr("TALLY_ENV", "development"),
		PostgresURL:        os.Getenv("TALLY_POSTGRES_URL"),
		HashSecret:         envOr("TALLY_HASH_SECRET", "dev-hash-secret-change-in-production"),
		AuditRetention:     envDuration("TALLY_AUDIT_RETENTION", DefaultAuditRetention),
		AnalyticsRetention: envDuration("TALLY_ANALYTICS_RETENTION", DefaultAnalyticsRetention),
		RetentionInterval:  envDuration("TALLY_RETENTION_INTERVAL", DefaultRetentionInterval),
		RetentionDryRun:    os.Getenv("TALLY_RETENTION_DRY_RUN") == "true",
		KafkaTopic:         envOr("TALLY_KAFKA_TOPIC", "tally.domain-events"),
		OTelEndpoint:       os.Getenv("TALLY_OTEL_ENDPOINT"),
		Redis: RedisConfig{
			URL:          os.Getenv("TALLY_REDIS_URL"),
			PoolSize:     envInt("TALLY_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("TALLY_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("TALLY_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("TALLY_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("TALLY_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}

	if brokers := os.Getenv("TALLY_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}

	// Strict in development, permissive everywhere else, explicit override wins.
	switch os.Getenv("TALLY_PII_MODE") {
	case string(PolicyStrict):
		cfg.PIIMode = PolicyStrict
	case string(PolicyPermissive):
		cfg.PIIMode = PolicyPermissive
	default:
		if cfg.Environment == "development" {
			cfg.PIIMode = PolicyStrict
		} else {
			cfg.PIIMode = PolicyPermissive
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
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

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
