// Package main implements walcheckpointer, a background worker that opens a
// WAL directory and appends a checkpoint record on a fixed interval. It
// exists for deployments where the embedding process does not want to
// schedule its own checkpoints.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hollowledger/waldb/internal/libs/config"
	"github.com/hollowledger/waldb/internal/libs/obs"
	"github.com/hollowledger/waldb/internal/wal"
)

const checkpointInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	obs.InitLogger(cfg.LogLevel)
	logger := obs.Logger("walcheckpointer")

	ctx, err := wal.Init(wal.Config{
		Dir:         cfg.WalDir,
		SegmentSize: cfg.SegmentSize,
		Logger:      obs.Logger("wal"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open WAL directory")
	}
	defer func() { _ = ctx.Close() }()

	logger.Info().Str("dir", cfg.WalDir).Dur("interval", checkpointInterval).Msg("checkpointer started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			loc, err := ctx.Checkpoint()
			if err != nil {
				logger.Error().Err(err).Msg("checkpoint failed")
				continue
			}
			logger.Debug().Stringer("location", loc).Msg("checkpoint written")
		case <-sigCh:
			logger.Info().Msg("checkpointer shutting down")
			return
		}
	}
}
