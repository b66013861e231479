package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cst "wuyrush.io/pinboard/constants"
)

func TestSetupDefaults(t *testing.T) {
	viper.Reset()
	t.Setenv(cst.EnvEnvFile, filepath.Join(t.TempDir(), "missing.env"))
	Setup()
	assert.Equal(t, cst.DriverPostgres, viper.GetString(cst.EnvStoreDriver))
	assert.Equal(t, 24*time.Hour, viper.GetDuration(cst.EnvEditWindow))
	assert.Equal(t, 50, viper.GetInt(cst.EnvDiscoveryLimit))
	assert.False(t, viper.GetBool(cst.EnvStrictPalette))
}

func TestSetupDotenv(t *testing.T) {
	viper.Reset()
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PIN_STORE_DRIVER=memory\nPIN_DISCOVERY_LIMIT=10\n"), 0o600))
	t.Setenv(cst.EnvEnvFile, envFile)
	// variables already present in the environment must win
	t.Setenv(cst.EnvDiscoveryLimit, "20")
	defer os.Unsetenv(cst.EnvStoreDriver)
	Setup()
	assert.Equal(t, cst.DriverMemory, viper.GetString(cst.EnvStoreDriver))
	assert.Equal(t, 20, viper.GetInt(cst.EnvDiscoveryLimit))
}
