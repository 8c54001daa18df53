// Package config provides environment-based configuration for the
// entity resolution service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StoreBackend selects which store.Store implementation the service
// wires up at startup.
type StoreBackend string

const (
	StoreBackendMemory   StoreBackend = "memory"
	StoreBackendBolt     StoreBackend = "bbolt"
	StoreBackendPostgres StoreBackend = "postgres"
)

// Config holds all configuration for the entity resolution service.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Store backend selection
	StoreBackend StoreBackend
	DatabaseURL  string // required when StoreBackend == postgres
	BoltPath     string // required when StoreBackend == bbolt

	// Encryption of identifier values at rest (optional — nil codec if unset)
	EncryptionKeyPath string
	EncryptionKey     string

	// NATS / Hermes event publishing
	NatsURL       string
	HermesSubject string
	HermesEnabled bool

	// Rate limiting
	ResolveRateLimit int // requests per minute
	AdminRateLimit   int // requests per minute
	RateWindow       time.Duration

	// Auth
	JWTSecret string
}

// Load reads configuration from environment variables with sensible
// defaults. Store-backend-specific requirements (DATABASE_URL, bolt path)
// are validated against the selected backend only.
func Load() (*Config, error) {
	c := &Config{
		Port:              envInt("RESOLVER_PORT", 8500),
		LogLevel:          envStr("RESOLVER_LOG_LEVEL", "info"),
		StoreBackend:      StoreBackend(envStr("RESOLVER_STORE_BACKEND", string(StoreBackendMemory))),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		BoltPath:          envStr("RESOLVER_BOLT_PATH", "./resolver.db"),
		EncryptionKeyPath: envStr("ENCRYPTION_KEY_PATH", "/run/secrets/resolver_encryption_key"),
		EncryptionKey:     envStr("ENCRYPTION_KEY", ""),
		NatsURL:           envStr("NATS_URL", "nats://localhost:4222"),
		HermesSubject:     envStr("RESOLVER_EVENT_SUBJECT", "resolver.events"),
		HermesEnabled:     envBool("RESOLVER_HERMES_ENABLED", false),
		ResolveRateLimit:  envInt("RESOLVE_RATE_LIMIT", 600),
		AdminRateLimit:    envInt("ADMIN_RATE_LIMIT", 60),
		RateWindow:        time.Minute,
		JWTSecret:         envStr("JWT_SECRET", ""),
	}

	if c.EncryptionKey == "" {
		if data, err := os.ReadFile(c.EncryptionKeyPath); err == nil {
			c.EncryptionKey = string(data)
		}
		// Missing key file is not fatal: encryption-at-rest is opt-in.
	}

	switch c.StoreBackend {
	case StoreBackendPostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when RESOLVER_STORE_BACKEND=postgres")
		}
	case StoreBackendBolt:
		if c.BoltPath == "" {
			return nil, fmt.Errorf("RESOLVER_BOLT_PATH is required when RESOLVER_STORE_BACKEND=bbolt")
		}
	case StoreBackendMemory:
		// no external resource needed
	default:
		return nil, fmt.Errorf("unknown RESOLVER_STORE_BACKEND %q", c.StoreBackend)
	}

	return c, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
