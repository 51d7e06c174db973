package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TECHSYNC_TARGET", "TECHSYNC_API_URL", "TECHSYNC_TIMEOUT",
		"TECHSYNC_DATA_DIR", "TECHSYNC_STORE_KEY", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TECHSYNC_DATA_DIR", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, string(TargetIOSSimulator), cfg.Target)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, "warn", cfg.LogLevel)

	u, err := cfg.BaseURL()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", u.String())
}

func TestTargets(t *testing.T) {
	cases := map[Target]string{
		TargetIOSSimulator:    "http://localhost:8000",
		TargetAndroidEmulator: "http://10.0.2.2:8000",
		TargetProduction:      "https://api.techsync.com",
	}
	for target, want := range cases {
		cfg := &Config{Target: string(target), Timeout: time.Second}
		require.NoError(t, cfg.Validate())
		u, err := cfg.BaseURL()
		require.NoError(t, err)
		assert.Equal(t, want, u.String())
	}
}

func TestAPIURLOverridesTarget(t *testing.T) {
	clearEnv(t)
	t.Setenv("TECHSYNC_DATA_DIR", t.TempDir())
	t.Setenv("TECHSYNC_TARGET", string(TargetProduction))
	t.Setenv("TECHSYNC_API_URL", "http://192.168.1.100:8000/")
	t.Setenv("TECHSYNC_TIMEOUT", "3s")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	u, err := cfg.BaseURL()
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.100:8000", u.String())
	assert.Equal(t, 3*time.Second, cfg.Timeout)
}

func TestDotenvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TECHSYNC_TARGET=android-emulator\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("TECHSYNC_DATA_DIR", dir)
	t.Cleanup(func() {
		os.Unsetenv("TECHSYNC_TARGET")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "android-emulator", cfg.Target)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	t.Run("UnknownTarget", func(t *testing.T) {
		cfg := &Config{Target: "desktop", Timeout: time.Second}
		assert.ErrorContains(t, cfg.Validate(), "TECHSYNC_TARGET")
	})

	t.Run("BadURL", func(t *testing.T) {
		cfg := &Config{APIURL: "ftp://example.com", Timeout: time.Second}
		assert.ErrorContains(t, cfg.Validate(), "TECHSYNC_API_URL")
	})

	t.Run("NonPositiveTimeout", func(t *testing.T) {
		cfg := &Config{Target: string(TargetProduction)}
		assert.ErrorContains(t, cfg.Validate(), "TECHSYNC_TIMEOUT")
	})

	t.Run("StoreKey", func(t *testing.T) {
		cfg := &Config{Target: string(TargetProduction), Timeout: time.Second, StoreKey: "not-hex"}
		assert.ErrorContains(t, cfg.Validate(), "valid hex")

		cfg.StoreKey = "00ff"
		assert.ErrorContains(t, cfg.Validate(), "at least 16 bytes")

		cfg.StoreKey = "000102030405060708090a0b0c0d0e0f"
		require.NoError(t, cfg.Validate())
		secret, err := cfg.StoreSecret()
		require.NoError(t, err)
		assert.Len(t, secret, 16)
	})

	t.Run("NoStoreKey", func(t *testing.T) {
		cfg := &Config{}
		secret, err := cfg.StoreSecret()
		require.NoError(t, err)
		assert.Nil(t, secret)
	})
}

func TestSessionPath(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/techsync"}
	assert.Equal(t, filepath.Join("/var/lib/techsync", "session.db"), cfg.SessionPath())
}
