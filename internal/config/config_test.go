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
	t.Setenv("GIN_MODE", "")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("USER_STORE", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.UserStore)
	assert.Equal(t, StoreMemory, cfg.SessionStore)
	assert.Equal(t, "chocolatechip", cfg.SessionCookieName)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL())
	assert.True(t, cfg.SessionCookieHTTPOnly)
	assert.False(t, cfg.SessionCookieSecure)
	assert.False(t, cfg.SweepEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SESSION_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/auth")
	t.Setenv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/1")
	t.Setenv("SESSION_TTL_MINUTES", "30")
	t.Setenv("SESSION_ROLLING", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.SessionStore)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL())
	assert.True(t, cfg.SessionRolling)
	assert.True(t, cfg.SweepEnabled())
}

func TestLoadOverlayFile(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("SESSION_COOKIE_NAME", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "port: \"8081\"\nsession_cookie_name: sid\nsession_ttl_minutes: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "sid", cfg.SessionCookieName)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL())
	// ファイルに無いキーは環境変数・デフォルトのまま
	assert.Equal(t, StoreMemory, cfg.SessionStore)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			GinMode:           "debug",
			UserStore:         StoreMemory,
			SessionStore:      StoreMemory,
			SessionCookieName: "chocolatechip",
			SessionTTLMinutes: 10,
			SessionSameSite:   "lax",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid defaults", mutate: func(*Config) {}},
		{name: "unknown session store", mutate: func(c *Config) { c.SessionStore = "file" }, wantErr: "SESSION_STORE"},
		{name: "unknown user store", mutate: func(c *Config) { c.UserStore = "redis" }, wantErr: "USER_STORE"},
		{name: "bad same site", mutate: func(c *Config) { c.SessionSameSite = "sometimes" }, wantErr: "SESSION_SAME_SITE"},
		{name: "non positive ttl", mutate: func(c *Config) { c.SessionTTLMinutes = 0 }, wantErr: "SESSION_TTL_MINUTES"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.UserStore = StorePostgres }, wantErr: "DATABASE_URL"},
		{
			name: "release requires long secret",
			mutate: func(c *Config) {
				c.GinMode = "release"
				c.UserStore = StorePostgres
				c.DatabaseURL = "postgres://localhost/auth"
				c.SessionSecret = "short"
			},
			wantErr: "SESSION_SECRET",
		},
		{
			name: "release rejects memory users",
			mutate: func(c *Config) {
				c.GinMode = "release"
				c.SessionSecret = "0123456789abcdef0123456789abcdef"
			},
			wantErr: "USER_STORE=memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
