// Package main implements walctl, the operator CLI for inspecting and
// driving a WAL directory outside of an embedding process.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hollowledger/waldb/internal/dbconn"
	"github.com/hollowledger/waldb/internal/libs/config"
	"github.com/hollowledger/waldb/internal/libs/obs"
	"github.com/hollowledger/waldb/internal/wal"
)

func main() {
	root := &cobra.Command{Use: "walctl", Short: "Inspect and drive a WAL directory"}

	root.AddCommand(initCmd(), appendCmd(), checkpointCmd(), recoverCmd(), inspectCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openContext opens a WalContext for dir, wiring a Postgres-backed catalog
// when cfg.CatalogDSN is set. The returned cleanup closes the catalog's
// connection pool, if one was opened, and must be deferred alongside
// WalContext.Close by every caller.
func openContext(dir string) (*wal.WalContext, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if dir != "" {
		cfg.WalDir = dir
	}
	obs.InitLogger(cfg.LogLevel)

	cleanup := func() {}
	var catalog wal.SegmentCatalog
	if cfg.CatalogDSN != "" {
		db, err := dbconn.New(context.Background(), cfg.CatalogDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to catalog database: %w", err)
		}
		catalog = wal.NewPostgresCatalog(db.Pool())
		cleanup = db.Close
	}

	walCtx, err := wal.Init(wal.Config{
		Dir:         cfg.WalDir,
		SegmentSize: cfg.SegmentSize,
		Catalog:     catalog,
		Logger:      obs.Logger("walctl"),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return walCtx, cleanup, nil
}

func initCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a WAL directory and its first segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cleanup, err := openContext(dir)
			if err != nil {
				return err
			}
			defer cleanup()
			defer func() { _ = ctx.Close() }()
			fmt.Printf("initialized WAL at %s\n", dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "WAL directory (overrides WAL_DIR)")
	return cmd
}

func appendCmd() *cobra.Command {
	var dir string
	var recType uint32
	var xid uint32
	var payload string
	var sync bool
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append a single record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cleanup, err := openContext(dir)
			if err != nil {
				return err
			}
			defer cleanup()
			defer func() { _ = ctx.Close() }()

			slot, err := ctx.BeginRecord(wal.RecordType(recType), xid, len(payload))
			if err != nil {
				return err
			}
			copy(slot, payload)
			loc, err := ctx.EndRecord()
			if err != nil {
				return err
			}
			if sync {
				if err := ctx.Flush(true); err != nil {
					return err
				}
			}
			fmt.Printf("wrote record at %s\n", loc)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "WAL directory (overrides WAL_DIR)")
	cmd.Flags().Uint32Var(&recType, "type", uint32(wal.RecordTypeInsert), "record type")
	cmd.Flags().Uint32Var(&xid, "xid", 0, "transaction id")
	cmd.Flags().StringVar(&payload, "payload", "", "record payload")
	cmd.Flags().BoolVar(&sync, "sync", true, "flush durably after writing")
	return cmd
}

func checkpointCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Append and flush a checkpoint record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cleanup, err := openContext(dir)
			if err != nil {
				return err
			}
			defer cleanup()
			defer func() { _ = ctx.Close() }()

			loc, err := ctx.Checkpoint()
			if err != nil {
				return err
			}
			fmt.Printf("checkpoint written at %s\n", loc)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "WAL directory (overrides WAL_DIR)")
	return cmd
}

func recoverCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Replay the log forward and report recovery statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cleanup, err := openContext(dir)
			if err != nil {
				return err
			}
			defer cleanup()
			defer func() { _ = ctx.Close() }()

			stats, err := ctx.Recover(wal.HandlerTable{}, nil)
			if err != nil {
				return err
			}
			fmt.Printf("segments_processed=%d records_processed=%d records_applied=%d records_skipped=%d\n",
				stats.SegmentsProcessed, stats.RecordsProcessed, stats.RecordsApplied, stats.RecordsSkipped)
			fmt.Printf("committed=%d aborted=%d incomplete=%d bytes=%d time_ms=%d\n",
				stats.CommittedTransactions, stats.AbortedTransactions, stats.IncompleteTransactions,
				stats.BytesProcessed, stats.RecoveryTimeMs)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "WAL directory (overrides WAL_DIR)")
	return cmd
}

func inspectCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the segments present in a WAL directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.WalDir = dir
			}

			nums, err := wal.ListSegmentNumbers(cfg.WalDir)
			if err != nil {
				return err
			}
			for _, n := range nums {
				fmt.Println(n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "WAL directory (overrides WAL_DIR)")
	return cmd
}
