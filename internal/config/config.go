// Package config loads runtime configuration from the environment, in the
// teacher's flat os.Getenv-with-fallback style — extended with the knobs the
// cache's expanded scope needs (hash algorithm, mmap ceiling, session TTL)
// alongside the original HTTP-service knobs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/zynqcloud/go-storage/internal/integrity"
)

// Config holds all runtime configuration for the storage service.
type Config struct {
	Port         string
	StoragePath  string // cache root: content-v2/, index-v5/, tmp/ live here
	ServiceToken string

	HashAlgorithm        string // default digest algorithm for new writes
	MmapCeilingBytes     int64  // loaded from CACHE_MMAP_CEILING_BYTES; not passed to the writer, which uses writer.MmapCeiling
	MaxConcurrentUploads int
	MaxAssemblyWorkers   int
	MinFreeBytes         int64
	SessionTTLHours      int
}

// Load reads configuration from the environment, validating the values that
// have a closed set of valid forms (HashAlgorithm) or must parse as a
// specific numeric type. Fields with a simple string fallback never fail.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", getEnv("STORAGE_PORT", "5000")),
		StoragePath:   getEnv("CACHE_ROOT", getEnv("STORAGE_PATH", "/data/files")),
		ServiceToken:  getEnv("SERVICE_TOKEN", ""),
		HashAlgorithm: getEnv("CACHE_HASH_ALGO", integrity.SHA256),
	}

	mmapCeiling, err := getEnvInt64("CACHE_MMAP_CEILING_BYTES", 1<<20)
	if err != nil {
		return nil, err
	}
	cfg.MmapCeilingBytes = mmapCeiling

	maxUploads, err := getEnvInt("MAX_CONCURRENT_UPLOADS", 256)
	if err != nil {
		return nil, err
	}
	cfg.MaxConcurrentUploads = maxUploads

	maxAssembly, err := getEnvInt("MAX_ASSEMBLY_WORKERS", 16)
	if err != nil {
		return nil, err
	}
	cfg.MaxAssemblyWorkers = maxAssembly

	minFree, err := getEnvInt64("MIN_FREE_BYTES", 0)
	if err != nil {
		return nil, err
	}
	cfg.MinFreeBytes = minFree

	ttl, err := getEnvInt("SESSION_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	cfg.SessionTTLHours = ttl

	if _, err := integrity.Hash(cfg.HashAlgorithm); err != nil {
		return nil, fmt.Errorf("config: CACHE_HASH_ALGO: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
