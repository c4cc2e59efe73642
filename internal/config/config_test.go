package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxRetries)
	require.True(t, cfg.RewardRatePerAsset.Equal(decimal.RequireFromString("0.0001")))
	require.Equal(t, 90*time.Second, cfg.ConfirmTimeout)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("REWARD_RATE_PER_SECOND", "0.25")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("DEVELOPMENT", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.MaxRetries)
	require.True(t, cfg.RewardRatePerAsset.Equal(decimal.RequireFromString("0.25")))
	require.Equal(t, time.Hour, cfg.SessionTTL)
	require.True(t, cfg.Development)
}

func TestValidateServer(t *testing.T) {
	key := base58.Encode(bytes.Repeat([]byte{3}, 32))
	cfg := &Config{
		RPCURL:              "http://localhost:8899",
		DASURL:              "http://localhost:8899",
		AuthorityPrivateKey: "secret",
		RewardMint:          key,
		CollectionAddress:   key,
		RewardRatePerAsset:  decimal.RequireFromString("0.0001"),
		MaxRetries:          3,
		SessionSecret:       "s3cr3t",
		DatabaseDriver:      "sqlite",
		SQLitePath:          "test.db",
	}
	require.NoError(t, cfg.ValidateServer())

	cfg.MaxRetries = 0
	require.Error(t, cfg.ValidateServer())
	cfg.MaxRetries = 3

	cfg.DatabaseDriver = "mysql"
	require.Error(t, cfg.ValidateServer())
	cfg.DatabaseDriver = "sqlite"

	cfg.SessionSecret = ""
	require.Error(t, cfg.ValidateServer())
}
