// Package config loads process configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is shared by the server, worker and seed binaries.
type Config struct {
	Env      string `validate:"required,oneof=development staging production test"`
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"required,oneof=debug info warn error"`

	StoreDriver        string        `validate:"required,oneof=postgres memory"`
	DatabaseURL        string        `validate:"required_if=StoreDriver postgres"`
	DBMaxConns         int           `validate:"gte=1,lte=500"`
	TxStatementTimeout time.Duration `validate:"gte=0"`

	JWTSecret string        `validate:"required,min=16"`
	JWTIssuer string        `validate:"required"`
	JWTTTL    time.Duration `validate:"gt=0"`

	RedisAddress       string        `validate:"omitempty,hostname_port"`
	MasterDataCacheTTL time.Duration `validate:"gte=0"`

	ReconcileInterval  time.Duration `validate:"gt=0"`
	ReconcileLockTTL   time.Duration `validate:"gt=0"`
	OutboxPollInterval time.Duration `validate:"gt=0"`

	IdempotencyEnabled bool
	IdempotencyTTL     time.Duration `validate:"gt=0"`

	AuthzRulesFile string `validate:"omitempty,file"`
}

// IsDevelopment reports the development environment.
func (c Config) IsDevelopment() bool { return c.Env == "development" }

// Load reads .env (if any) and the environment, then validates the result.
func Load() (Config, error) {
	// Missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Config{
		Env:      getEnv("APP_ENV", "development"),
		Port:     getEnv("APP_PORT", "8080"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),

		StoreDriver:        getEnv("STORE_DRIVER", DriverPostgres),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 20),
		TxStatementTimeout: getEnvDuration("TX_STATEMENT_TIMEOUT", 30*time.Second),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "stockflow"),
		JWTTTL:    getEnvDuration("JWT_TTL", 12*time.Hour),

		RedisAddress:       os.Getenv("REDIS_ADDRESS"),
		MasterDataCacheTTL: getEnvDuration("MASTERDATA_CACHE_TTL", 10*time.Minute),

		ReconcileInterval:  getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileLockTTL:   getEnvDuration("RECONCILE_LOCK_TTL", 2*time.Minute),
		OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),

		IdempotencyEnabled: getEnvBool("IDEMPOTENCY_ENABLED", true),
		IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		AuthzRulesFile: os.Getenv("AUTHZ_RULES_FILE"),
	}

	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = "development-only-secret-change-me"
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks cfg and names the offending environment field.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return fmt.Errorf("invalid configuration: %w", err)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
