// Package config provides application configuration management from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

const defaultSegmentSize = 16 * 1024 * 1024

// Config holds application configuration
type Config struct {
	WalDir      string
	SegmentSize uint32
	CatalogDSN  string
	SyncPolicy  string
	LogLevel    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	segSize, err := getEnvUint32("WAL_SEGMENT_SIZE", defaultSegmentSize)
	if err != nil {
		return nil, fmt.Errorf("WAL_SEGMENT_SIZE: %w", err)
	}

	cfg := &Config{
		WalDir:      getEnv("WAL_DIR", "./data/wal"),
		SegmentSize: segSize,
		CatalogDSN:  getEnv("WAL_CATALOG_DSN", ""),
		SyncPolicy:  getEnv("WAL_SYNC_POLICY", "interval"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	if cfg.WalDir == "" {
		return nil, fmt.Errorf("WAL_DIR is required")
	}
	if cfg.SyncPolicy != "interval" && cfg.SyncPolicy != "immediate" {
		return nil, fmt.Errorf("WAL_SYNC_POLICY must be 'interval' or 'immediate', got %q", cfg.SyncPolicy)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvUint32(key string, fallback uint32) (uint32, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
