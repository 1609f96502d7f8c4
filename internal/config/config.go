// Package config loads the immutable process configuration for the access
// control service. Values are read once at startup; the core treats them as
// constant for the process lifetime.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envPrefix = "KITAHUB_"

	defaultIssuer     = "kitahub"
	defaultAudience   = "kitahub-api"
	defaultAlgorithm  = "HS256"
	defaultAccessTTL  = 30 * time.Minute
	defaultListenAddr = ":8080"
)

var supportedAlgorithms = map[string]struct{}{
	"HS256": {},
	"HS384": {},
	"HS512": {},
}

// Config holds everything the service needs at construction time.
type Config struct {
	Environment string

	// Token verification settings. Algorithm names the single signing
	// method this deployment accepts; tokens are never allowed to choose.
	Secret         []byte
	Issuer         string
	Audience       string
	Algorithm      string
	AccessTokenTTL time.Duration

	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuditEnabled bool
	ListenAddr   string
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Environment:    envOr("ENV", "production"),
		Secret:         []byte(strings.TrimSpace(os.Getenv(envPrefix + "AUTH_SECRET"))),
		Issuer:         envOr("TOKEN_ISSUER", defaultIssuer),
		Audience:       envOr("TOKEN_AUDIENCE", defaultAudience),
		Algorithm:      strings.ToUpper(envOr("TOKEN_ALGORITHM", defaultAlgorithm)),
		AccessTokenTTL: defaultAccessTTL,
		PostgresDSN:    strings.TrimSpace(os.Getenv(envPrefix + "PG_DSN")),
		RedisAddr:      strings.TrimSpace(os.Getenv(envPrefix + "REDIS_ADDR")),
		RedisPassword:  os.Getenv(envPrefix + "REDIS_PASSWORD"),
		AuditEnabled:   true,
		ListenAddr:     envOr("LISTEN_ADDR", defaultListenAddr),
	}

	if len(cfg.Secret) == 0 {
		return Config{}, errors.New("config: " + envPrefix + "AUTH_SECRET is required")
	}
	if _, ok := supportedAlgorithms[cfg.Algorithm]; !ok {
		return Config{}, fmt.Errorf("config: unsupported token algorithm %q", cfg.Algorithm)
	}

	if raw := strings.TrimSpace(os.Getenv(envPrefix + "ACCESS_TOKEN_TTL_MINUTES")); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return Config{}, fmt.Errorf("config: invalid access token TTL %q", raw)
		}
		cfg.AccessTokenTTL = time.Duration(minutes) * time.Minute
	}
	if raw := strings.TrimSpace(os.Getenv(envPrefix + "REDIS_DB")); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil || db < 0 {
			return Config{}, fmt.Errorf("config: invalid redis db %q", raw)
		}
		cfg.RedisDB = db
	}
	if raw := strings.TrimSpace(os.Getenv(envPrefix + "AUDIT_ENABLED")); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid audit toggle %q", raw)
		}
		cfg.AuditEnabled = enabled
	}

	return cfg, nil
}

// IsDevelopment reports whether verbose error detail may be exposed in
// responses. Production responses stay opaque.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func envOr(suffix, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + suffix)); v != "" {
		return v
	}
	return fallback
}
