package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const productionEnv = "production"

type Config struct {
	Env  string
	Port string

	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RedisURL string

	JWTSecret            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	BcryptCost           int
	RevokeRotatedRefresh bool

	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration

	ChatUpstreamURL    string
	ChatUpstreamAPIKey string
	ChatTimeout        time.Duration

	SentryDSN string
}

// LoadConfig reads the process environment. DATABASE_URL and JWT_SECRET are
// required; everything else falls back to a default.
func LoadConfig() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Env:  envOrDefault("APP_ENV", "development"),
		Port: envOrDefault("PORT", "8080"),

		DatabaseURL:       databaseURL,
		DBMaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),

		RedisURL: envOrDefault("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret:            jwtSecret,
		AccessTokenTTL:       envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 60),
		RefreshTokenTTL:      envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
		BcryptCost:           envIntOrDefault("BCRYPT_COST", 10),
		RevokeRotatedRefresh: EnvBoolOrDefault("REVOKE_ROTATED_REFRESH", true),

		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),

		ChatUpstreamURL:    strings.TrimSpace(os.Getenv("CHAT_UPSTREAM_URL")),
		ChatUpstreamAPIKey: strings.TrimSpace(os.Getenv("CHAT_UPSTREAM_API_KEY")),
		ChatTimeout:        envSecondsOrDefault("CHAT_TIMEOUT_SECONDS", 25),

		SentryDSN: strings.TrimSpace(os.Getenv("SENTRY_DSN")),
	}

	if len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	return cfg, nil
}

// SecureCookies reports whether credential cookies get the Secure attribute.
func (c Config) SecureCookies() bool {
	return c.Env == productionEnv
}

func (c Config) Addr() string {
	return ":" + c.Port
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
