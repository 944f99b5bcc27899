package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Database.Host = "localhost"
	cfg.Database.User = "zelador"
	cfg.Database.Password = "secret"
	cfg.Process.OwnerJID = "5511999990000@s.whatsapp.net"
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "zelador_development", cfg.Database.Name)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "/", cfg.Process.Prefix)
	assert.Equal(t, 3*time.Second, cfg.Reconnect.Base)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Reconnect.Window)
	assert.Equal(t, 30*time.Minute, cfg.Sync.GroupStaleness)
	assert.Equal(t, 1024, cfg.Queue.Size)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ZELADOR_ENV", "production")
	t.Setenv("ZELADOR_DB_NAME", "zl")
	t.Setenv("ZELADOR_DB_PORT", "3307")
	t.Setenv("ZELADOR_RECONNECT_BASE_S", "5")
	t.Setenv("ZELADOR_GROUP_STALENESS_MIN", "15")
	t.Setenv("ZELADOR_CACHE_CLONE_ON_GET", "1")
	t.Setenv("ZELADOR_METRICS_ENABLED", "true")
	t.Setenv("ZELADOR_PREFIX", "!")

	cfg := Load()

	assert.Equal(t, "zl_production", cfg.Database.Name)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, 5*time.Second, cfg.Reconnect.Base)
	assert.Equal(t, 15*time.Minute, cfg.Sync.GroupStaleness)
	assert.True(t, cfg.Cache.CloneOnGet)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "!", cfg.Process.Prefix)
}

func TestLoadMalformedValues(t *testing.T) {
	t.Setenv("ZELADOR_DB_PORT", "not-a-number")
	t.Setenv("ZELADOR_SYNC_TIMEOUT_S", "-5")
	t.Setenv("ZELADOR_CACHE_AUTO_CLEAN", "talvez")

	cfg := Load()

	// Unparsable numbers keep the default; anything but true/1 reads false.
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, 30*time.Second, cfg.Sync.GroupSyncTimeout)
	assert.False(t, cfg.Cache.AutoClean)
}

func TestValidateReportsAllMissing(t *testing.T) {
	cfg := Default()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZELADOR_DB_HOST")
	assert.Contains(t, err.Error(), "ZELADOR_DB_USER")
	assert.Contains(t, err.Error(), "ZELADOR_DB_PASSWORD")
	assert.Contains(t, err.Error(), "ZELADOR_OWNER_JID")
}

func TestValidatePasses(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Database.PoolSize = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Reconnect.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestBroadcastModeLookup(t *testing.T) {
	cfg := Default()

	assert.Equal(t, cfg.Broadcast.Fast, cfg.Broadcast.Mode("fast"))
	assert.Equal(t, cfg.Broadcast.Fast, cfg.Broadcast.Mode("FAST"))
	assert.Equal(t, cfg.Broadcast.Safe, cfg.Broadcast.Mode("safe"))
	assert.Equal(t, cfg.Broadcast.Default, cfg.Broadcast.Mode(""))
	assert.Equal(t, cfg.Broadcast.Default, cfg.Broadcast.Mode("qualquer"))
}
