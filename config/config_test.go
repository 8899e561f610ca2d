package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("NOTIFY_POLL_INTERVAL", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Len(t, cfg.Notifications.Checkpoints, 6)
	assert.Equal(t, 30*time.Second, cfg.Notifications.PollInterval)
	assert.Equal(t, time.Minute, cfg.Notifications.Tolerance)
	assert.Equal(t, "America/Sao_Paulo", cfg.Location.String())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("NOTIFY_CHECKPOINTS", "08:00, noon")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("NOTIFY_CHECKPOINTS", "")
	t.Setenv("STORAGE", "sqlite")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresServiceKey(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("SERVICE_KEY", "")

	t.Setenv("APP_ENV", EnvProd)
	_, err := Load()
	assert.ErrorContains(t, err, "SERVICE_KEY")

	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("ZAPI_INSTANCE_ID", "instance")
	t.Setenv("ZAPI_TOKEN", "token")
	_, err = Load()
	assert.ErrorContains(t, err, "SERVICE_KEY")

	t.Setenv("SERVICE_KEY", "key")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.ServiceKeyRequired())

	t.Setenv("ZAPI_TOKEN", "")
	t.Setenv("SERVICE_KEY", "")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.ServiceKeyRequired())
}

func TestLoadRejectsInconsistentNotificationTiming(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	tests := []struct {
		name     string
		poll     string
		cooldown string
	}{
		{name: "poll skips windows", poll: "5m", cooldown: "3m"},
		{name: "cooldown inside window", poll: "1m", cooldown: "2m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NOTIFY_TOLERANCE", "1m")
			t.Setenv("NOTIFY_POLL_INTERVAL", tt.poll)
			t.Setenv("NOTIFY_SOUND_COOLDOWN", tt.cooldown)

			_, err := Load()
			assert.Error(t, err)
		})
	}

	t.Setenv("NOTIFY_POLL_INTERVAL", "2m")
	t.Setenv("NOTIFY_SOUND_COOLDOWN", "150s")
	_, err := Load()
	assert.NoError(t, err)
}
