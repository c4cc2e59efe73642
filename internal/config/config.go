package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/core-coin/praemium/pkg/validation"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	APIURL  string
	// Database configuration
	DatabaseDriver   string
	SQLitePath       string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	// Ledger network configuration
	RPCURL         string
	DASURL         string
	Cluster        string
	ConfirmTimeout time.Duration
	// AuthorityPrivateKey is the base58 secret key of the freeze/transfer authority
	AuthorityPrivateKey string
	CollectionAddress   string
	// Reward configuration
	RewardMint         string
	RewardDecimals     uint8
	RewardRatePerAsset decimal.Decimal
	MaxRetries         int
	// Session configuration
	SessionSecret    string
	SessionTTL       time.Duration
	SignInDomain     string
	SignInStatement  string
	NonceCacheSize   uint
	AuthRateLimitRPM float64

	ReconcileInterval time.Duration

	// Notification configuration
	TelegramBotToken string
	TelegramChatID   string

	// Client configuration
	WalletKeypairPath string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:         getEnvAsBool("DEVELOPMENT", false),
		APIPort:             getEnvAsInt("API_PORT", 6533),
		APIURL:              getEnv("API_URL", "http://localhost:6533"),
		DatabaseDriver:      getEnv("DATABASE_DRIVER", "postgres"),
		SQLitePath:          getEnv("SQLITE_PATH", "praemium.db"),
		PostgresUser:        getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:    getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:        getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:        getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:          getEnv("POSTGRES_DB", "praemium"),
		RPCURL:              getEnv("RPC_URL", "https://api.devnet.solana.com"),
		DASURL:              getEnv("DAS_URL", ""),
		Cluster:             getEnv("CLUSTER", "devnet"),
		ConfirmTimeout:      getEnvAsDuration("CONFIRM_TIMEOUT", 90*time.Second),
		AuthorityPrivateKey: getEnv("AUTHORITY_PRIVATE_KEY", ""),
		CollectionAddress:   getEnv("COLLECTION_ADDRESS", ""),
		RewardMint:          getEnv("REWARD_MINT", ""),
		RewardDecimals:      uint8(getEnvAsInt("REWARD_DECIMALS", 6)),
		RewardRatePerAsset:  getEnvAsDecimal("REWARD_RATE_PER_SECOND", decimal.RequireFromString("0.0001")),
		MaxRetries:          getEnvAsInt("MAX_RETRIES", 3),
		SessionSecret:       getEnv("SESSION_SECRET", ""),
		SessionTTL:          getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		SignInDomain:        getEnv("SIGNIN_DOMAIN", "localhost"),
		SignInStatement:     getEnv("SIGNIN_STATEMENT", "Sign this message to sign in to the staking app."),
		NonceCacheSize:      uint(getEnvAsInt("NONCE_CACHE_SIZE", 10000)),
		AuthRateLimitRPM:    float64(getEnvAsInt("AUTH_RATE_LIMIT_RPM", 30)),
		ReconcileInterval:   getEnvAsDuration("RECONCILE_INTERVAL", 15*time.Minute),
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:      getEnv("TELEGRAM_CHAT_ID", ""),
		WalletKeypairPath:   getEnv("WALLET_KEYPAIR_PATH", ""),
	}

	return cfg, nil
}

// ValidateServer checks the fields the server needs.
func (c *Config) ValidateServer() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}

	if c.DASURL == "" {
		return fmt.Errorf("DAS_URL is required")
	}

	if err := validation.ValidateAddress(c.CollectionAddress); err != nil {
		return fmt.Errorf("invalid COLLECTION_ADDRESS: %w", err)
	}

	switch c.DatabaseDriver {
	case "postgres":
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	return nil
}

// ValidateClient checks the fields the client commands need.
func (c *Config) ValidateClient() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.APIURL == "" {
		return fmt.Errorf("API_URL is required")
	}

	if c.WalletKeypairPath == "" {
		return fmt.Errorf("WALLET_KEYPAIR_PATH is required")
	}

	return nil
}

func (c *Config) validateCommon() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.AuthorityPrivateKey == "" {
		return fmt.Errorf("AUTHORITY_PRIVATE_KEY is required")
	}

	if err := validation.ValidateAddress(c.RewardMint); err != nil {
		return fmt.Errorf("invalid REWARD_MINT: %w", err)
	}

	if !c.RewardRatePerAsset.IsPositive() {
		return fmt.Errorf("REWARD_RATE_PER_SECOND must be positive")
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDecimal(name string, defaultValue decimal.Decimal) decimal.Decimal {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := decimal.NewFromString(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
