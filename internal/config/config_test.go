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
	t.Setenv("CHATCORE_SECURITY_ENCRYPTION_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "chatcore", cfg.AppName)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Verification.TTL)
	assert.Equal(t, 5, cfg.Verification.CodeLength)
	assert.Equal(t, 3, cfg.Verification.MaxAttempts)
	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
	assert.Equal(t, "secret", cfg.Security.EncryptionKey)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: staging
http:
  port: 9000
database:
  driver: postgres
  url: postgres://localhost/chat
security:
  encryption_key: from-file
verification:
  ttl: 90s
notify:
  workers: 4
`), 0o600))

	t.Setenv("CHATCORE_HTTP_PORT", "9100")
	t.Setenv("CHATCORE_SECURITY_LEGACY_KEYS", "k1,k2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, 9100, cfg.HTTP.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/chat", cfg.Database.URL)
	assert.Equal(t, "from-file", cfg.Security.EncryptionKey)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Security.LegacyKeys)
	assert.Equal(t, 90*time.Second, cfg.Verification.TTL)
	assert.Equal(t, 4, cfg.Notify.Workers)
}

func TestLoadRequiresEncryptionKey(t *testing.T) {
	t.Setenv("CHATCORE_SECURITY_ENCRYPTION_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "security.encryption_key")
}

func TestValidate(t *testing.T) {
	t.Setenv("CHATCORE_SECURITY_ENCRYPTION_KEY", "secret")
	t.Setenv("CHATCORE_DATABASE_DRIVER", "mysql")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database.driver")

	t.Setenv("CHATCORE_DATABASE_DRIVER", "postgres")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CHATCORE_SECURITY_ENCRYPTION_KEY", "secret")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
