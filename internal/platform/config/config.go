package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration. Every component receives its
// dependencies at construction; nothing reads the environment after startup.
type Config struct {
	Env           string
	Addr          string
	PostgresURL   string
	RedisURL      string
	KafkaBrokers  []string
	AuditTopic    string
	JWTSigningKey string

	// Email dispatch. When APIKey is empty the dispatcher degrades to
	// simulated sends.
	EmailAPIKey   string
	EmailFrom     string
	EmailFromName string
	BaseURL       string

	// ExportTTL bounds how long a GDPR export artifact stays downloadable.
	ExportTTL time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Env:           envOr("STORYLEDGER_ENV", "dev"),
		Addr:          envOr("STORYLEDGER_ADDR", ":8080"),
		PostgresURL:   os.Getenv("STORYLEDGER_POSTGRES_URL"),
		RedisURL:      os.Getenv("STORYLEDGER_REDIS_URL"),
		AuditTopic:    envOr("STORYLEDGER_AUDIT_TOPIC", "audit.entries"),
		JWTSigningKey: envOr("STORYLEDGER_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		EmailAPIKey:   os.Getenv("STORYLEDGER_EMAIL_API_KEY"),
		EmailFrom:     envOr("STORYLEDGER_EMAIL_FROM", "notifications@storyledger.local"),
		EmailFromName: envOr("STORYLEDGER_EMAIL_FROM_NAME", "Story Ledger"),
		BaseURL:       envOr("STORYLEDGER_BASE_URL", "http://localhost:8080"),
		ExportTTL:     7 * 24 * time.Hour,
	}

	if brokers := os.Getenv("STORYLEDGER_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if ttl := os.Getenv("STORYLEDGER_EXPORT_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.ExportTTL = d
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
