package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultJWTSecret = "dev-secret"
	minSecretLength  = 32
	minBcryptCost    = 4
	maxBcryptCost    = 31
)

// Config aggregates runtime configuration for the service.
// It is built once by Load and passed by value; nothing mutates it afterwards.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines credential and session parameters.
type AuthConfig struct {
	JWTSecret               string
	JWTIssuer               string
	AccessTokenTTL          time.Duration
	RefreshTokenTTL         time.Duration
	PasswordResetTTL        time.Duration
	BcryptCost              int
	ResetSingleUse          bool
	RevokeFamilyOnReuse     bool
	SweepInterval           time.Duration
	LoginRateLimitPerMinute int
}

// NotificationConfig holds notification channel settings.
type NotificationConfig struct {
	ChannelPrefix string
	EmailFrom     string
	WebhookURL    string
}

// Load reads configuration from environment variables, applying defaults where possible.
// Malformed values are reported together instead of silently falling back.
func Load() (Config, error) {
	_ = godotenv.Load()

	env := &envReader{}
	cfg := Config{
		App: AppConfig{
			Name:                  env.str("APP_NAME", "auth-service"),
			Env:                   env.str("APP_ENV", "development"),
			Host:                  env.str("APP_HOST", "0.0.0.0"),
			Port:                  env.str("APP_PORT", "3010"),
			Version:               env.str("APP_VERSION", "dev"),
			RequestTimeoutSeconds: env.int("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            env.str("POSTGRES_DSN", ""),
			MaxConns:       int32(env.int("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(env.int("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  env.bool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(env.int("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(env.int("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     env.str("REDIS_ADDR", "127.0.0.1:6379"),
			Password: env.str("REDIS_PASSWORD", ""),
			DB:       env.int("REDIS_DB", 0),
		},
		Logger: LoggerConfig{
			Level: env.str("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:               env.str("AUTH_JWT_SECRET", defaultJWTSecret),
			JWTIssuer:               env.str("AUTH_JWT_ISSUER", "auth-service"),
			AccessTokenTTL:          env.duration("AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL:         env.duration("AUTH_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			PasswordResetTTL:        env.duration("AUTH_PASSWORD_RESET_TTL", time.Hour),
			BcryptCost:              env.int("AUTH_BCRYPT_COST", 10),
			ResetSingleUse:          env.bool("AUTH_RESET_SINGLE_USE", true),
			RevokeFamilyOnReuse:     env.bool("AUTH_REVOKE_FAMILY_ON_REUSE", false),
			SweepInterval:           env.duration("AUTH_SWEEP_INTERVAL", time.Hour),
			LoginRateLimitPerMinute: env.int("AUTH_LOGIN_RATE_LIMIT_PER_MINUTE", 20),
		},
		Notification: NotificationConfig{
			ChannelPrefix: env.str("NOTIFY_CHANNEL_PREFIX", "notification"),
			EmailFrom:     env.str("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL:    env.str("NOTIFY_WEBHOOK_URL", ""),
		},
	}
	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that every component relies on.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_ACCESS_TOKEN_TTL must be positive"))
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_REFRESH_TOKEN_TTL must be positive"))
	}
	if c.Auth.PasswordResetTTL <= 0 {
		errs = append(errs, errors.New("AUTH_PASSWORD_RESET_TTL must be positive"))
	}
	if c.Auth.SweepInterval < 0 {
		errs = append(errs, errors.New("AUTH_SWEEP_INTERVAL must not be negative"))
	}
	if c.Auth.BcryptCost < minBcryptCost || c.Auth.BcryptCost > maxBcryptCost {
		errs = append(errs, fmt.Errorf("AUTH_BCRYPT_COST must be within [%d,%d]", minBcryptCost, maxBcryptCost))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.App.IsProduction() {
		if c.Auth.JWTSecret == defaultJWTSecret || len(c.Auth.JWTSecret) < minSecretLength {
			errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be set to at least %d bytes in production", minSecretLength))
		}
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required in production"))
		}
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether the service runs with production safeguards.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ParseDuration accepts Go duration syntax plus a "d" suffix for whole days ("7d").
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(raw)
}

// envReader reads typed variables and remembers every parse failure.
type envReader struct {
	errs []error
}

func (r *envReader) str(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func (r *envReader) int(key string, fallback int) int {
	return lookup(r, key, fallback, strconv.Atoi)
}

func (r *envReader) bool(key string, fallback bool) bool {
	return lookup(r, key, fallback, strconv.ParseBool)
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	return lookup(r, key, fallback, ParseDuration)
}

func lookup[T any](r *envReader, key string, fallback T, parse func(string) (T, error)) T {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := parse(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return parsed
}
