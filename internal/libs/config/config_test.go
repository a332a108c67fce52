package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.WalDir != "./data/wal" {
		t.Errorf("expected default WalDir=./data/wal, got %s", cfg.WalDir)
	}
	if cfg.SegmentSize != defaultSegmentSize {
		t.Errorf("expected default SegmentSize=%d, got %d", defaultSegmentSize, cfg.SegmentSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default LogLevel=info, got %s", cfg.LogLevel)
	}
	if cfg.SyncPolicy != "interval" {
		t.Errorf("expected default SyncPolicy=interval, got %s", cfg.SyncPolicy)
	}
}

func TestLoadWithEnv(t *testing.T) {
	_ = os.Setenv("WAL_DIR", "/tmp/mywal")
	_ = os.Setenv("WAL_SEGMENT_SIZE", "1048576")
	_ = os.Setenv("LOG_LEVEL", "debug")
	_ = os.Setenv("WAL_SYNC_POLICY", "immediate")
	defer func() {
		_ = os.Unsetenv("WAL_DIR")
		_ = os.Unsetenv("WAL_SEGMENT_SIZE")
		_ = os.Unsetenv("LOG_LEVEL")
		_ = os.Unsetenv("WAL_SYNC_POLICY")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.WalDir != "/tmp/mywal" {
		t.Errorf("expected WalDir=/tmp/mywal, got %s", cfg.WalDir)
	}
	if cfg.SegmentSize != 1048576 {
		t.Errorf("expected SegmentSize=1048576, got %d", cfg.SegmentSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel=debug, got %s", cfg.LogLevel)
	}
	if cfg.SyncPolicy != "immediate" {
		t.Errorf("expected SyncPolicy=immediate, got %s", cfg.SyncPolicy)
	}
}

func TestLoadRejectsInvalidSyncPolicy(t *testing.T) {
	_ = os.Setenv("WAL_SYNC_POLICY", "bogus")
	defer func() { _ = os.Unsetenv("WAL_SYNC_POLICY") }()

	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to reject an invalid WAL_SYNC_POLICY")
	}
}
