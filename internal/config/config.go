package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "DigiBank"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultAccessTokenTTL   = 24 * time.Hour
	defaultStoreTimeout     = 2 * time.Second
	defaultLoginMaxAttempts = 5
	defaultLoginLockout     = 30 * time.Minute
	defaultLoginIPLimit     = 30
	defaultMinimumOpening   = 50_000
	defaultAMQPExchange     = "digibank.events"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	AMQPURL        string
	AMQPExchange   string
	SentryDSN      string
	JWTSecret      string
	AccessTokenTTL time.Duration
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// StoreTimeout bounds every lookup against Postgres or Redis in the core.
	StoreTimeout time.Duration

	LoginMaxAttempts      int
	LoginLockout          time.Duration
	LoginIPLimitPerMinute int

	MinimumOpeningBalance int64
	BcryptCost            int
	SnowflakeNode         int64

	AdminName     string
	AdminEmail    string
	AdminPassword string
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:               getEnv("APP_NAME", defaultAppName),
		AppEnv:                strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:                  getEnv("PORT", defaultPort),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		AMQPURL:               os.Getenv("AMQP_URL"),
		AMQPExchange:          getEnv("AMQP_EXCHANGE", defaultAMQPExchange),
		SentryDSN:             os.Getenv("SENTRY_DSN"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		AdminName:             getEnv("ADMIN_NAME", "Administrator"),
		AdminEmail:            os.Getenv("ADMIN_EMAIL"),
		AdminPassword:         os.Getenv("ADMIN_PASSWORD"),
		MinimumOpeningBalance: defaultMinimumOpening,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", defaultAccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.StoreTimeout, err = durationEnv("STORE_TIMEOUT", defaultStoreTimeout); err != nil {
		return Config{}, err
	}
	if cfg.LoginLockout, err = durationEnv("LOGIN_LOCKOUT", defaultLoginLockout); err != nil {
		return Config{}, err
	}
	if cfg.LoginMaxAttempts, err = intEnv("LOGIN_MAX_ATTEMPTS", defaultLoginMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.LoginIPLimitPerMinute, err = intEnv("LOGIN_IP_LIMIT_PER_MINUTE", defaultLoginIPLimit); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = intEnv("BCRYPT_COST", 0); err != nil {
		return Config{}, err
	}
	node, err := intEnv("SNOWFLAKE_NODE", 1)
	if err != nil {
		return Config{}, err
	}
	cfg.SnowflakeNode = int64(node)
	minimum, err := intEnv("MINIMUM_OPENING_BALANCE", defaultMinimumOpening)
	if err != nil {
		return Config{}, err
	}
	cfg.MinimumOpeningBalance = int64(minimum)

	if cfg.LoginMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}
	if cfg.LoginLockout <= 0 {
		return Config{}, fmt.Errorf("LOGIN_LOCKOUT must be positive")
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set")
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "development-secret"
	}

	return cfg, nil
}

// IsDev reports whether the process runs in a local/development environment where
// in-memory backends may replace Postgres and Redis.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv accepts either "<key>_SECONDS" as an integer or "<key>" as a Go duration.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
