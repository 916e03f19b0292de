package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: development\n"))
	require.NoError(t, err)

	assert.Equal(t, 2333, cfg.Port)
	assert.NotEmpty(t, cfg.DSN)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.True(t, cfg.IsDev())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
port: 8080
env: Production
dsn: user:pass@tcp(db:3306)/app
redis_url: redis-host:6379
jwt_secret: s3cret
admin_token: tok
allowed_origins:
  - " https://app.example.org "
  - ""
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "user:pass@tcp(db:3306)/app", cfg.DSN)
	assert.Equal(t, "redis://redis-host:6379", cfg.RedisURL)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "tok", cfg.AdminToken)
	assert.Equal(t, []string{"https://app.example.org"}, cfg.AllowedOrigins)
}

func TestLoadDatabaseURLAlias(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database_url: root@tcp(localhost:3306)/other\n"))
	require.NoError(t, err)
	assert.Equal(t, "root@tcp(localhost:3306)/other", cfg.DSN)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "prot: 8080\n"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	_, err := Load(writeConfig(t, "port: 99999\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}
