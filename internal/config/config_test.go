package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUANTRANK_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.InstanceID)
	assert.True(t, cfg.PricePollerEnabled)
	assert.True(t, cfg.AttributePollerEnabled)
	assert.False(t, cfg.Backup.Enabled())
	assert.Contains(t, cfg.DatabasePath, "quantrank.db")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUANTRANK_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9100")
	t.Setenv("INSTANCE_ID", "2")
	t.Setenv("PRICE_POLLER_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 2, cfg.InstanceID)
	assert.False(t, cfg.PricePollerEnabled)
}

func TestValidateInstanceID(t *testing.T) {
	t.Setenv("QUANTRANK_DATA_DIR", t.TempDir())
	t.Setenv("INSTANCE_ID", "3")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateBackupCredentials(t *testing.T) {
	t.Setenv("QUANTRANK_DATA_DIR", t.TempDir())
	t.Setenv("BACKUP_S3_BUCKET", "quantrank-backups")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")

	t.Setenv("BACKUP_S3_ACCESS_KEY_ID", "key")
	t.Setenv("BACKUP_S3_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, 7, cfg.Backup.RetainCount)
}
