package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const prefix = "STREAMSALES_"

type Config struct {
	StoreProvider string
	DBUser        string
	DBPass        string
	DBHost        string
	DBPort        string
	DBName        string
	SSLMode       string

	RedisHost string
	RedisPort string

	BusProvider  string
	NatsHost     string
	NatsPort     string
	AmqpHost     string
	AmqpPort     string
	AmqpUser     string
	AmqpPass     string
	AmqpExchange string

	ApiEnabled    string
	ApiPort       string
	GRPCPort      string
	WorkerEnabled bool

	Currency              string
	PlatformUserID        uuid.UUID
	DefaultCommissionRate decimal.Decimal
	DefaultAffiliateRate  decimal.Decimal
	TxMaxRetries          int
	LockTimeout           time.Duration
	ReceiptTTL            time.Duration
}

// New loads and validates configuration from environment variables.
// Redis is optional: without STREAMSALES_REDIS_HOST the cache is disabled.
// The HTTP server only starts when STREAMSALES_API_ENABLED is "true", and the
// gRPC server only when STREAMSALES_GRPC_PORT is set.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoreProvider: getEnv("STORE_PROVIDER", "postgres"),
		DBUser:        getEnv("POSTGRES_USER", ""),
		DBPass:        getEnv("POSTGRES_PASSWORD", ""),
		DBHost:        getEnv("POSTGRES_HOST", ""),
		DBPort:        getEnv("POSTGRES_PORT", "5432"),
		DBName:        getEnv("POSTGRES_DB", ""),
		SSLMode:       getEnv("POSTGRES_SSLMODE", "disable"),
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		BusProvider:   getEnv("BUS_PROVIDER", "none"),
		NatsHost:      getEnv("NATS_HOST", ""),
		NatsPort:      getEnv("NATS_PORT", "4222"),
		AmqpHost:      getEnv("AMQP_HOST", ""),
		AmqpPort:      getEnv("AMQP_PORT", "5672"),
		AmqpUser:      getEnv("AMQP_USER", "guest"),
		AmqpPass:      getEnv("AMQP_PASSWORD", "guest"),
		AmqpExchange:  getEnv("AMQP_EXCHANGE", "marketplace.events"),
		ApiEnabled:    getEnv("API_ENABLED", ""),
		ApiPort:       getEnv("API_PORT", ""),
		GRPCPort:      getEnv("GRPC_PORT", ""),
		WorkerEnabled: getEnv("WORKER_ENABLED", "") == "true",
		Currency:      getEnv("CURRENCY", "USD"),
		TxMaxRetries:  getEnvInt("TX_MAX_RETRIES", 3),
		LockTimeout:   time.Duration(getEnvInt("LOCK_TIMEOUT_MS", 5000)) * time.Millisecond,
		ReceiptTTL:    time.Duration(getEnvInt("RECEIPT_TTL_SECONDS", 86400)) * time.Second,
	}

	var err error
	if cfg.DefaultCommissionRate, err = getEnvDecimal("DEFAULT_COMMISSION_RATE", "0.05"); err != nil {
		return nil, err
	}
	if cfg.DefaultAffiliateRate, err = getEnvDecimal("DEFAULT_AFFILIATE_RATE", "0"); err != nil {
		return nil, err
	}
	if cfg.DefaultCommissionRate.IsNegative() || cfg.DefaultCommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("invalid %sDEFAULT_COMMISSION_RATE %s, must be within [0, 1]", prefix, cfg.DefaultCommissionRate)
	}
	if cfg.DefaultAffiliateRate.IsNegative() || cfg.DefaultAffiliateRate.GreaterThan(cfg.DefaultCommissionRate) {
		return nil, fmt.Errorf("invalid %sDEFAULT_AFFILIATE_RATE %s, must be within [0, commission rate]", prefix, cfg.DefaultAffiliateRate)
	}

	// Required: platform wallet owner
	raw := getEnv("PLATFORM_USER_ID", "")
	if raw == "" {
		return nil, fmt.Errorf("missing required env: %sPLATFORM_USER_ID", prefix)
	}
	if cfg.PlatformUserID, err = uuid.Parse(raw); err != nil {
		return nil, fmt.Errorf("invalid %sPLATFORM_USER_ID: %w", prefix, err)
	}

	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" {
			return nil, fmt.Errorf("missing required env for database: %sPOSTGRES_USER/HOST/DB", prefix)
		}
	case "memory":
	default:
		return nil, fmt.Errorf("invalid store provider %q, must be 'postgres' or 'memory'", cfg.StoreProvider)
	}

	switch cfg.BusProvider {
	case "nats":
		if cfg.NatsHost == "" {
			return nil, fmt.Errorf("missing required env for nats bus: %sNATS_HOST", prefix)
		}
	case "amqp":
		if cfg.AmqpHost == "" {
			return nil, fmt.Errorf("missing required env for amqp bus: %sAMQP_HOST", prefix)
		}
	case "none":
	default:
		return nil, fmt.Errorf("invalid bus provider %q, must be 'nats', 'amqp' or 'none'", cfg.BusProvider)
	}

	// The reconciliation worker consumes bus events, which only NATS delivers back to us.
	if cfg.WorkerEnabled && cfg.BusProvider != "nats" {
		return nil, fmt.Errorf("%sWORKER_ENABLED requires %sBUS_PROVIDER=nats", prefix, prefix)
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

// RedisAddr returns "" when the cache is not configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) AmqpURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.AmqpUser, c.AmqpPass, c.AmqpHost, c.AmqpPort)
}

// GRPCAddr returns the gRPC listen address, or an error if the server is not configured.
func (c *Config) GRPCAddr() (string, error) {
	if c.GRPCPort == "" {
		return "", fmt.Errorf("gRPC server is disabled (%sGRPC_PORT is empty)", prefix)
	}
	return ":" + c.GRPCPort, nil
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if STREAMSALES_API_ENABLED != "true"; callers should skip starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("%sAPI_PORT is required when %sAPI_ENABLED=true", prefix, prefix)
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (%sAPI_ENABLED != true)", prefix)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(prefix + key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(prefix + key)
	if val == "" {
		return defaultVal
	}
	var intVal int
	if _, err := fmt.Sscanf(val, "%d", &intVal); err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvDecimal(key, defaultVal string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, defaultVal))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s%s: %w", prefix, key, err)
	}
	return d, nil
}
