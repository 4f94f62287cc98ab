package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	LocalDBPath   string
	CheckoutURL   string

	JWTSecret string
	JWTIssuer string

	SessionTTL      time.Duration
	ProbeTimeout    time.Duration
	SessionTimeout  time.Duration
	AuthTimeout     time.Duration
	LocalAuthDelay  time.Duration
	NotificationTTL time.Duration
	CheckoutTimeout time.Duration

	AdminEmails string
}

func Load() Config {
	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		LocalDBPath:   getenv("LOCAL_DB_PATH", "skillforge.db"),
		CheckoutURL:   getenv("CHECKOUT_URL", ""),

		JWTSecret: getenv("JWT_SECRET", "skillforge-dev-secret"),
		JWTIssuer: getenv("JWT_ISSUER", "skillforge"),

		SessionTTL:      getenvDuration("SESSION_TTL", 24*time.Hour),
		ProbeTimeout:    getenvDuration("PROBE_TIMEOUT", 3*time.Second),
		SessionTimeout:  getenvDuration("SESSION_TIMEOUT", 3*time.Second),
		AuthTimeout:     getenvDuration("AUTH_TIMEOUT", 8*time.Second),
		LocalAuthDelay:  getenvDuration("LOCAL_AUTH_DELAY", 800*time.Millisecond),
		NotificationTTL: getenvDuration("NOTIFICATION_TTL", 4*time.Second),
		CheckoutTimeout: getenvDuration("CHECKOUT_TIMEOUT", 8*time.Second),

		AdminEmails: getenv("ADMIN_EMAILS", ""),
	}
}

// RemoteConfigured reports whether the optional hosted backend should be
// attempted at all. Both the row store and the session store must be set.
func (c Config) RemoteConfigured() bool {
	return c.DatabaseURL != "" && c.RedisAddr != ""
}

func (c Config) CheckoutConfigured() bool {
	return c.CheckoutURL != ""
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
