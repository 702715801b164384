package config

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenguard"
)

var testKey = bytes.Repeat([]byte{0xab}, 32)

func envMap(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"JWT_SECRET":     "0123456789abcdef0123456789abcdef",
		"ENCRYPTION_KEY": hex.EncodeToString(testKey),
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Engine.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Engine.Refresh.TTL)
	assert.Equal(t, testKey, cfg.Engine.Encryption.Key)
	assert.True(t, cfg.Engine.CSRF.Enabled)
	assert.False(t, cfg.Production)
	assert.False(t, cfg.Engine.Security.EnableRefreshThrottle)
	assert.False(t, cfg.Engine.Audit.Enabled)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.UniformRefreshErrors)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "pgx", cfg.Store.DatabaseDriver)
}

func TestFromEnvOverrides(t *testing.T) {
	env := baseEnv()
	env["JWT_EXPIRES_IN"] = "5m"
	env["REFRESH_TOKEN_EXPIRES_IN"] = "2w"
	env["NODE_ENV"] = "production"
	env["CSRF_ENABLED"] = "false"
	env["UNIFORM_REFRESH_ERRORS"] = "false"
	env["REFRESH_MAX_ATTEMPTS"] = "10"
	env["REFRESH_WINDOW"] = "30s"
	env["STORE_BACKEND"] = "Postgres"
	env["DATABASE_URL"] = "postgres://localhost/tg"
	env["DATABASE_DRIVER"] = "postgres"
	env["AUDIT_LOG_PATH"] = "/var/log/tg-audit.jsonl"

	cfg, err := FromEnv(envMap(env))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Engine.JWT.AccessTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.Engine.Refresh.TTL)
	assert.True(t, cfg.Production)
	assert.True(t, cfg.Engine.Security.ProductionMode)
	assert.False(t, cfg.Engine.CSRF.Enabled)
	assert.False(t, cfg.HTTP.UniformRefreshErrors)
	assert.True(t, cfg.Engine.Security.EnableRefreshThrottle)
	assert.Equal(t, 10, cfg.Engine.Security.MaxRefreshAttempts)
	assert.Equal(t, 30*time.Second, cfg.Engine.Security.RefreshWindow)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres", cfg.Store.DatabaseDriver)
	assert.True(t, cfg.Engine.Audit.Enabled)
}

func TestFromEnvErrors(t *testing.T) {
	cases := map[string]func(map[string]string){
		"missing secret":    func(e map[string]string) { delete(e, "JWT_SECRET") },
		"missing key":       func(e map[string]string) { delete(e, "ENCRYPTION_KEY") },
		"short key":         func(e map[string]string) { e["ENCRYPTION_KEY"] = "too-short" },
		"bad duration":      func(e map[string]string) { e["JWT_EXPIRES_IN"] = "15 minutes" },
		"bad boolean":       func(e map[string]string) { e["CSRF_ENABLED"] = "maybe" },
		"bad integer":       func(e map[string]string) { e["REFRESH_MAX_ATTEMPTS"] = "many" },
		"unknown backend":   func(e map[string]string) { e["STORE_BACKEND"] = "mongo" },
		"postgres no url":   func(e map[string]string) { e["STORE_BACKEND"] = "postgres" },
		"throttle memory":   func(e map[string]string) { e["STORE_BACKEND"] = "memory"; e["REFRESH_MAX_ATTEMPTS"] = "3" },
		"bootstrap no pass": func(e map[string]string) { e["BOOTSTRAP_EMAIL"] = "root@example.com" },
		"weak prod secret":  func(e map[string]string) { e["APP_ENV"] = "production"; e["JWT_SECRET"] = "short" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			mutate(env)
			_, err := FromEnv(envMap(env))
			require.Error(t, err)
			assert.ErrorIs(t, err, tokenguard.ErrConfiguration)
		})
	}
}

func TestFromEnvReportsEveryBadValue(t *testing.T) {
	env := baseEnv()
	delete(env, "JWT_SECRET")
	env["ENCRYPTION_KEY"] = "too-short"
	env["CSRF_ENABLED"] = "maybe"

	_, err := FromEnv(envMap(env))
	require.Error(t, err)
	assert.ErrorIs(t, err, tokenguard.ErrConfiguration)
	for _, want := range []string{"JWT_SECRET", "ENCRYPTION_KEY", "CSRF_ENABLED"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestBadDurationWrapsConfigurationError(t *testing.T) {
	env := baseEnv()
	env["REFRESH_TOKEN_EXPIRES_IN"] = "7days"
	_, err := FromEnv(envMap(env))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tokenguard.ErrConfiguration))
}

func TestParseEncryptionKey(t *testing.T) {
	fromHex, err := ParseEncryptionKey(hex.EncodeToString(testKey))
	require.NoError(t, err)
	assert.Equal(t, testKey, fromHex)

	fromB64, err := ParseEncryptionKey(base64.StdEncoding.EncodeToString(testKey))
	require.NoError(t, err)
	assert.Equal(t, testKey, fromB64)

	raw, err := ParseEncryptionKey("abcdefghijklmnopqrstuvwxyz012345")
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	_, err = ParseEncryptionKey(base64.StdEncoding.EncodeToString(testKey[:16]))
	assert.Error(t, err)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	content := "JWT_SECRET=dotenv-secret-dotenv-secret-123456\nENCRYPTION_KEY=" + hex.EncodeToString(testKey) + "\nHTTP_ADDR=:9999\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	for _, k := range []string{"JWT_SECRET", "ENCRYPTION_KEY", "HTTP_ADDR"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, []byte("dotenv-secret-dotenv-secret-123456"), cfg.Engine.JWT.PrivateKey)
}
