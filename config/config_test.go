package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "0.14", cfg.VATRate)
	assert.Equal(t, "gorm", cfg.OrderStore)
	assert.Equal(t, 30*time.Minute, cfg.PaymentTimeout)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9090\"\ndb_driver: sqlite\ndelivery_fee: \"5\"\n"), 0o644))

	t.Setenv("DELIVERY_FEE", "7.5")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "7.5", cfg.DeliveryFee)
}

func TestValidate(t *testing.T) {
	cfg := &Config{DBDriver: "oracle", OrderStore: "gorm", PaymentTimeout: time.Minute}
	assert.Error(t, cfg.Validate())

	cfg = &Config{DBDriver: "sqlite", OrderStore: "redis", PaymentTimeout: time.Minute}
	assert.Error(t, cfg.Validate())

	cfg = &Config{DBDriver: "postgres", OrderStore: "mongo", PaymentTimeout: time.Minute}
	assert.NoError(t, cfg.Validate())
}
