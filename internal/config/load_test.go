package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(tempDir, "configs"), 0755))

	originalWD, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(originalWD) })
	require.NoError(t, os.Chdir(tempDir))
	return tempDir
}

func TestLoadConfig_HappyPath(t *testing.T) {
	tempDir := chdirTemp(t)

	envContent := fmt.Sprintf(
		"APP_NAME=%s\nSERVER_PORT=%d\nLOG_LEVEL=%s\nKAFKA_BROKERS=%s\nFLW_SECRET_KEY=%s\nFLW_HASH=%s\nESCROW_HOLD_PERIOD=%s\n",
		"EscrowTest", 9091, "debug", "kafka1:9092,kafka2:9092", "FLWSECK_TEST", "hash-123", "1h",
	)
	envFilePath := filepath.Join(tempDir, "configs", "api_gateway.env")
	require.NoError(t, os.WriteFile(envFilePath, []byte(envContent), 0644))

	cfg, err := LoadConfig(ComponentAPIGateway)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "EscrowTest", cfg.Application.Name)
	assert.Equal(t, ComponentAPIGateway, cfg.Application.Component)
	assert.Equal(t, 9091, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "kafka1:9092,kafka2:9092", cfg.Kafka.Brokers)
	assert.Equal(t, "FLWSECK_TEST", cfg.Gateway.SecretKey)
	assert.Equal(t, "hash-123", cfg.Escrow.WebhookSecret)
	assert.Equal(t, time.Hour, cfg.Escrow.HoldPeriod)

	assert.Equal(t, "development", cfg.Application.Env)
	assert.Equal(t, "escrow_events", cfg.Kafka.EventsTopic)
	assert.Equal(t, "NGN", cfg.Escrow.Currency)
	assert.Equal(t, time.Hour, cfg.Settlement.Interval)
	assert.Equal(t, 24, cfg.Settlement.MaxTransferAttempts)
	assert.Equal(t, "http://localhost:3000/payment/callback", cfg.Gateway.RedirectURL)
	assert.Equal(t, "https://api.flutterwave.com/v3", cfg.Gateway.BaseURL)
}

func TestLoadConfigWithNameAndType(t *testing.T) {
	tempDir := chdirTemp(t)

	content := "FLW_SECRET_KEY=FLWSECK_TEST\nSETTLEMENT_BATCH_SIZE=25\n"
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "configs", "worker.env"), []byte(content), 0644))

	cfg, err := LoadConfigWithNameAndType(ComponentSettlementWorker, "worker.env", "env")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Settlement.BatchSize)
	assert.Equal(t, ComponentSettlementWorker, cfg.Application.Component)
}

func TestLoadConfig_EnvironmentOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FLW_SECRET_KEY", "from-env")
	t.Setenv("SETTLEMENT_INTERVAL", "15m")

	cfg, err := LoadConfig(ComponentSettlementWorker)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Gateway.SecretKey)
	assert.Equal(t, 15*time.Minute, cfg.Settlement.Interval)
}

func TestLoadConfig_MissingSecrets(t *testing.T) {
	chdirTemp(t)

	_, err := LoadConfig(ComponentAPIGateway)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLW_SECRET_KEY is required")
	assert.Contains(t, err.Error(), "FLW_HASH is required")

	_, err = LoadConfig(ComponentSettlementWorker)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLW_SECRET_KEY is required")
	assert.NotContains(t, err.Error(), "FLW_HASH")

	cfg, err := LoadConfig(ComponentEventProjector)
	require.NoError(t, err)
	assert.Empty(t, cfg.Gateway.SecretKey)
}

func TestConfig_Validate(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	cfg.Application.Component = ComponentEventProjector
	assert.NoError(t, cfg.validate(), "default config should be valid")

	cfg.Escrow.Currency = "NAIRA"
	cfg.Settlement.BatchSize = 0
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ESCROW_CURRENCY must be a 3-letter code")
	assert.Contains(t, err.Error(), "SETTLEMENT_BATCH_SIZE must be greater than 0")
}
