package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration. Zero-value extras mean the
// service runs fully in-memory: no postgres, no redis, no kafka, which is
// exactly what a single-installation deployment or a test wants.
type Server struct {
	Addr            string
	DatabaseURL     string
	RedisURL        string
	KafkaBrokers    []string
	AuditTopic      string
	AdminJWTKey     string
	AdminAPIKeyHash string
	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays
// lean.
func FromEnv() Server {
	addr := os.Getenv("MELD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	auditTopic := os.Getenv("MELD_AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "meld.audit"
	}

	jwtKey := os.Getenv("MELD_ADMIN_JWT_KEY")
	if jwtKey == "" {
		// Development default; override in production.
		jwtKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("MELD_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:            addr,
		DatabaseURL:     os.Getenv("MELD_DATABASE_URL"),
		RedisURL:        os.Getenv("MELD_REDIS_URL"),
		KafkaBrokers:    brokers,
		AuditTopic:      auditTopic,
		AdminJWTKey:     jwtKey,
		AdminAPIKeyHash: os.Getenv("MELD_ADMIN_API_KEY_HASH"),
		ShutdownTimeout: 10 * time.Second,
	}
}
