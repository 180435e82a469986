package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "http://localhost:8080", cfg.Issuer)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, 5*time.Minute, cfg.IDTokenTTL())
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL())
	assert.Equal(t, 10*time.Minute, cfg.AuthCodeTTL())
	assert.Equal(t, time.Hour, cfg.SessionTTL())
	assert.Equal(t, 15*time.Minute, cfg.FlowTTL())
	assert.Equal(t, 24*time.Hour, cfg.KeyRotationPeriod())
	assert.Equal(t, 3*time.Second, cfg.BackchannelTimeout())
	assert.Equal(t, 5, cfg.MaxLoginAttempts)
	assert.Equal(t, "front", cfg.LogoutChannel)
	assert.False(t, cfg.AllowEmptyScopeDefault)
	assert.Empty(t, cfg.RedisAddr, "backends default to in-memory")
	assert.Empty(t, cfg.MongoURI)
}

func TestConfigEnvOverride(t *testing.T) {
	t.Setenv("MAX_LOGIN_ATTEMPTS", "2")
	t.Setenv("LOGOUT_CHANNEL", "back")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxLoginAttempts)
	assert.Equal(t, "back", cfg.LogoutChannel)
}
