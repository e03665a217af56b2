package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv sets each key to "", which Load's getEnv helpers treat
// identically to "unset" (both fall back to the default).
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "PORT", "STORAGE_PORT", "CACHE_ROOT", "STORAGE_PATH",
		"SERVICE_TOKEN", "CACHE_HASH_ALGO", "CACHE_MMAP_CEILING_BYTES",
		"MAX_CONCURRENT_UPLOADS", "MAX_ASSEMBLY_WORKERS", "MIN_FREE_BYTES",
		"SESSION_TTL_HOURS")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "/data/files", cfg.StoragePath)
	assert.Equal(t, "sha256", cfg.HashAlgorithm)
	assert.EqualValues(t, 1<<20, cfg.MmapCeilingBytes)
	assert.Equal(t, 256, cfg.MaxConcurrentUploads)
	assert.Equal(t, 16, cfg.MaxAssemblyWorkers)
	assert.EqualValues(t, 0, cfg.MinFreeBytes)
	assert.Equal(t, 24, cfg.SessionTTLHours)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_ROOT", "/custom/root")
	t.Setenv("CACHE_HASH_ALGO", "sha512")
	t.Setenv("SESSION_TTL_HOURS", "48")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/custom/root", cfg.StoragePath)
	assert.Equal(t, "sha512", cfg.HashAlgorithm)
	assert.Equal(t, 48, cfg.SessionTTLHours)
}

func TestLoadRejectsUnknownHashAlgorithm(t *testing.T) {
	t.Setenv("CACHE_HASH_ALGO", "md5")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonIntegerEnv(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_UPLOADS", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestPortFallsBackToStorageAndCacheRoot(t *testing.T) {
	clearEnv(t, "PORT")
	t.Setenv("STORAGE_PORT", "7070")
	clearEnv(t, "CACHE_ROOT")
	t.Setenv("STORAGE_PATH", "/legacy/path")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "/legacy/path", cfg.StoragePath)
}
