package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Env         string
	DatabaseDSN string

	JWTSecret       string
	JWTTTL          time.Duration
	JWTRefreshGrace time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	AppHomeURL   string
	CORSOrigins  []string
	CookieSecure bool
}

// Load reads configuration from the environment with sensible defaults.
// Precedence: explicit env var > .env file (loaded by the caller) > default.
func Load() Config {
	cfg := Config{}
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("APP_ENV", "development")
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", "messages.db")
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.JWTTTL = ParseDuration("JWT_TTL", time.Hour)
	cfg.JWTRefreshGrace = ParseDuration("JWT_REFRESH_GRACE", 2*time.Hour)
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = ParseInt("REDIS_DB", 0)
	cfg.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", "")
	cfg.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", "")
	cfg.GoogleRedirectURL = getEnv("GOOGLE_REDIRECT_URI", "")
	cfg.AppHomeURL = getEnv("APP_HOME_URL", "/")
	for _, origin := range strings.Split(getEnv("CORS_ORIGINS", ""), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}
	cfg.CookieSecure = ParseBool("COOKIE_SECURE", cfg.Env == "production")
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ParseBool reads an env var as bool with default.
func ParseBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("invalid boolean for %s: %s", key, v)
			return def
		}
		return b
	}
	return def
}

// ParseInt reads an env var as int with default.
func ParseInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid integer for %s: %s", key, v)
			return def
		}
		return n
	}
	return def
}

// ParseDuration reads an env var as a Go duration ("30m", "24h") with default.
func ParseDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid duration for %s: %s", key, v)
			return def
		}
		return d
	}
	return def
}
