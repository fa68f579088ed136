package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Storage  string
	DBSource string
	Port     string
	Env      string

	JWTSecret string

	MaxTransferAmount      decimal.Decimal
	LargeTransferThreshold decimal.Decimal
	LockTimeout            time.Duration

	// Only read when Storage is memory; 0 starts with an empty ledger.
	MemorySeedAccounts int
	MemorySeedBalance  decimal.Decimal

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	ReferenceCacheTTL time.Duration

	KafkaBrokers []string
	AuditTopic   string
	HookBuffer   int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Storage:       getEnv("STORAGE", StoragePostgres),
		DBSource:      os.Getenv("DB_SOURCE"),
		Port:          getEnv("SERVER_PORT", "8080"),
		Env:           getEnv("ENVIRONMENT", "development"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		AuditTopic:    getEnv("AUDIT_TOPIC", "bank.audit"),
	}

	switch cfg.Storage {
	case StoragePostgres:
		if cfg.DBSource == "" {
			return nil, fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.Storage)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	var err error
	if cfg.MaxTransferAmount, err = getDecimal("MAX_TRANSFER_AMOUNT", "1000000"); err != nil {
		return nil, err
	}
	if cfg.LargeTransferThreshold, err = getDecimal("LARGE_TRANSFER_THRESHOLD", "10000"); err != nil {
		return nil, err
	}
	if cfg.LockTimeout, err = getDuration("LOCK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReferenceCacheTTL, err = getDuration("REFERENCE_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.HookBuffer, err = getInt("HOOK_BUFFER", 1024); err != nil {
		return nil, err
	}
	if cfg.MemorySeedAccounts, err = getInt("MEMORY_SEED_ACCOUNTS", 1000); err != nil {
		return nil, err
	}
	if cfg.MemorySeedBalance, err = getDecimal("MEMORY_SEED_BALANCE", "10000"); err != nil {
		return nil, err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s must be a positive amount", key)
	}
	return d, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}
