package postgres

import (
	"testing"
	"time"

	"wallet-gateway/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "wallet",
		Password: "secret",
		DBName:   "wallet_gateway",
		SSLMode:  "disable",
	}
}

func TestPoolConfig(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.MaxConns = 20
	cfg.MinConns = 5
	cfg.ConnMaxLifetime = 30 * time.Minute

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(20), poolCfg.MaxConns)
	assert.Equal(t, int32(5), poolCfg.MinConns)
	assert.Equal(t, 30*time.Minute, poolCfg.MaxConnLifetime)
	assert.Equal(t, "wallet_gateway", poolCfg.ConnConfig.Database)
	assert.Equal(t, "UTC", poolCfg.ConnConfig.RuntimeParams["timezone"])
	assert.Equal(t, applicationName, poolCfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfig_KeepsDriverDefaults(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.MinConns = 500

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)

	assert.Positive(t, poolCfg.MaxConns)
	assert.LessOrEqual(t, poolCfg.MinConns, poolCfg.MaxConns)
}

func TestPoolConfig_InvalidDSN(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.SSLMode = "sometimes"

	_, err := poolConfig(cfg)
	assert.Error(t, err)
}
