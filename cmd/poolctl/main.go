package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/tuannm99/clockpool/internal"
	"github.com/tuannm99/clockpool/internal/bufferpool"
	"github.com/tuannm99/clockpool/internal/storage"
	"github.com/tuannm99/clockpool/internal/storage/common"
	"github.com/tuannm99/clockpool/internal/wal"
)

func main() {
	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "poolctl:", err)
		os.Exit(1)
	}
}

// run drives a generated workload, or an interactive shell when the first
// argument is "shell".
func run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	shellMode := len(args) > 0 && args[0] == "shell"
	if shellMode {
		args = args[1:]
	}

	fs := pflag.NewFlagSet("poolctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file")
	fs.Int("pool-size", 0, "number of frames in the buffer pool")
	fs.String("storage-mode", "", "file or memory")
	fs.String("data-dir", "", "directory holding page segments")
	fs.Bool("wal", true, "log page images and replay them on start")
	fs.String("log-level", "", "debug, info, warn or error")
	var wl workloadOptions
	fs.IntVar(&wl.Workers, "workers", 8, "concurrent workers")
	fs.IntVar(&wl.Ops, "ops", 1000, "operations per worker")
	fs.IntVar(&wl.Pages, "pages", 64, "pages in the working set")
	fs.Uint64Var(&wl.Seed, "seed", 1, "workload random seed")
	historyPath := fs.String("history", defaultHistoryPath(), "shell history file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	v := internal.NewViper()
	for key, flag := range map[string]string{
		"pool_size":    "pool-size",
		"storage.mode": "storage-mode",
		"storage.dir":  "data-dir",
		"wal.enabled":  "wal",
		"log.level":    "log-level",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}
	if err := internal.ReadFile(v, *configPath); err != nil {
		return err
	}
	cfg, err := internal.Decode(v)
	if err != nil {
		return err
	}
	log := cfg.NewLogger(stderr)

	dm, closeDM, err := openDisk(cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeDM()) }()

	var lm bufferpool.LogManager
	if cfg.WAL.Enabled {
		w, openErr := wal.Open(cfg.WALDir())
		if openErr != nil {
			return fmt.Errorf("open wal: %w", openErr)
		}
		defer func() { err = multierr.Append(err, w.Close()) }()

		if err := w.Recover(dm); err != nil {
			return fmt.Errorf("recover wal: %w", err)
		}
		log.Info("wal recovered", "last_lsn", w.LastLSN())
		lm = w
	}

	bpm := bufferpool.NewBufferPoolManager(cfg.PoolSize, dm, lm, bufferpool.WithLogger(log))

	var (
		res    workloadResult
		runErr error
	)
	if shellMode {
		runErr = runShell(ctx, bpm, lm, *historyPath, stdout)
	} else {
		res, runErr = runWorkload(ctx, bpm, lm, wl, log)
	}
	flushErr := bpm.FlushAllPages()
	if err := multierr.Combine(runErr, flushErr, bpm.Validate()); err != nil {
		return err
	}
	if shellMode {
		return nil
	}

	printSummary(stdout, cfg, bpm.Stats(), res)
	return nil
}

func openDisk(cfg *internal.Config) (storage.DiskManager, func() error, error) {
	if cfg.Storage.Mode == internal.MemoryStorage {
		return storage.NewMemoryDiskManager(), func() error { return nil }, nil
	}
	dm, err := storage.NewFileDiskManager(storage.LocalFileSet{Dir: cfg.Storage.Dir, Base: cfg.Storage.Base})
	if err != nil {
		return nil, nil, err
	}
	return dm, dm.Close, nil
}

func printSummary(w io.Writer, cfg *internal.Config, st bufferpool.Stats, res workloadResult) {
	total := st.Hits + st.Misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(st.Hits) / float64(total) * 100
	}
	fmt.Fprintf(w, "pool:        %d frames (%s), storage=%s\n",
		cfg.PoolSize, humanize.IBytes(uint64(cfg.PoolSize)*common.PageSize), cfg.Storage.Mode)
	fmt.Fprintf(w, "operations:  %s (%s exhausted retries, %s pages deleted)\n",
		humanize.Comma(int64(res.Ops)), humanize.Comma(int64(res.Retries)), humanize.Comma(int64(res.Deleted)))
	fmt.Fprintf(w, "fetches:     %s hits, %s misses (%.1f%% hit rate)\n",
		humanize.Comma(int64(st.Hits)), humanize.Comma(int64(st.Misses)), hitRate)
	fmt.Fprintf(w, "evictions:   %s\n", humanize.Comma(int64(st.Evictions)))
	fmt.Fprintf(w, "write-backs: %s (%s)\n",
		humanize.Comma(int64(st.WriteBacks)), humanize.IBytes(st.WriteBacks*common.PageSize))
	fmt.Fprintf(w, "verified:    %d pages\n", res.Verified)
}
