package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/tuannm99/clockpool/internal/alias/bx"
	"github.com/tuannm99/clockpool/internal/bufferpool"
	"github.com/tuannm99/clockpool/internal/storage/common"
)

type workloadOptions struct {
	Workers int
	Ops     int
	Pages   int
	Seed    uint64
}

type workloadResult struct {
	Ops      int
	Retries  int
	Deleted  int
	Verified int
}

// ownedPage is a working-set page. Only its owning worker touches it, so
// writes never race; the workers still contend for frames.
type ownedPage struct {
	id      common.PageID
	counter uint32
}

type workerResult struct {
	ops, retries, deleted int
}

// runWorkload creates the working set, lets workers increment per-page
// counters through the pool, and checks every counter at the end.
func runWorkload(ctx context.Context, bpm *bufferpool.BufferPoolManager, lm bufferpool.LogManager, opts workloadOptions, log *slog.Logger) (workloadResult, error) {
	var res workloadResult
	if opts.Workers <= 0 || opts.Ops < 0 {
		return res, fmt.Errorf("workload: workers must be positive and ops non-negative")
	}
	if opts.Pages < opts.Workers {
		opts.Pages = opts.Workers
	}

	owned := make([][]*ownedPage, opts.Workers)
	for i := 0; i < opts.Pages; i++ {
		p, err := newPageRetry(ctx, bpm, nil)
		if err != nil {
			return res, err
		}
		bx.PutU32(p.Data(), 0)
		if err := bpm.UnpinPage(p.ID(), true); err != nil {
			return res, err
		}
		g := i % opts.Workers
		owned[g] = append(owned[g], &ownedPage{id: p.ID()})
	}

	results := make([]workerResult, opts.Workers)
	workers := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(opts.Workers)
	for g := 0; g < opts.Workers; g++ {
		workers.Go(func(ctx context.Context) error {
			r := rand.New(rand.NewPCG(opts.Seed, uint64(g)))
			return runWorker(ctx, bpm, lm, owned[g], opts.Ops, r, &results[g])
		})
	}
	err := workers.Wait()

	for _, wr := range results {
		res.Ops += wr.ops
		res.Retries += wr.retries
		res.Deleted += wr.deleted
	}
	if err != nil {
		return res, err
	}

	if lm != nil {
		if err := lm.Flush(^uint64(0)); err != nil {
			return res, fmt.Errorf("flush wal: %w", err)
		}
	}

	for _, pages := range owned {
		for _, op := range pages {
			if err := verifyPage(bpm, op); err != nil {
				return res, err
			}
			res.Verified++
		}
	}
	log.Info("workload done", "ops", res.Ops, "verified", res.Verified)
	return res, nil
}

func runWorker(ctx context.Context, bpm *bufferpool.BufferPoolManager, lm bufferpool.LogManager, pages []*ownedPage, ops int, r *rand.Rand, out *workerResult) error {
	for i := 0; i < ops; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.ops++

		switch n := r.IntN(10); {
		case n < 8:
			op := pages[r.IntN(len(pages))]
			p, err := fetchRetry(ctx, bpm, op.id, &out.retries)
			if err != nil {
				return err
			}
			op.counter++
			bx.PutU32(p.Data(), op.counter)
			if lm != nil {
				if _, err := lm.AppendPageImage(op.id, p.Data()); err != nil {
					_ = bpm.UnpinPage(op.id, true)
					return fmt.Errorf("log page %d: %w", op.id, err)
				}
			}
			if err := bpm.UnpinPage(op.id, true); err != nil {
				return err
			}

		case n < 9:
			op := pages[r.IntN(len(pages))]
			p, err := fetchRetry(ctx, bpm, op.id, &out.retries)
			if err != nil {
				return err
			}
			got := bx.U32(p.Data())
			if err := bpm.UnpinPage(op.id, false); err != nil {
				return err
			}
			if got != op.counter {
				return fmt.Errorf("page %d: counter %d, want %d", op.id, got, op.counter)
			}

		default:
			p, err := newPageRetry(ctx, bpm, &out.retries)
			if err != nil {
				return err
			}
			id := p.ID()
			p.Data()[0] = 0xFF
			if err := bpm.UnpinPage(id, true); err != nil {
				return err
			}
			if err := bpm.DeletePage(id); err != nil {
				return err
			}
			out.deleted++
		}
	}
	return nil
}

func fetchRetry(ctx context.Context, bpm *bufferpool.BufferPoolManager, id common.PageID, retries *int) (*bufferpool.Page, error) {
	for {
		p, err := bpm.FetchPage(id)
		if !errors.Is(err, bufferpool.ErrPoolExhausted) {
			return p, err
		}
		if retries != nil {
			*retries++
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		runtime.Gosched()
	}
}

func newPageRetry(ctx context.Context, bpm *bufferpool.BufferPoolManager, retries *int) (*bufferpool.Page, error) {
	for {
		p, err := bpm.NewPage()
		if !errors.Is(err, bufferpool.ErrPoolExhausted) {
			return p, err
		}
		if retries != nil {
			*retries++
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		runtime.Gosched()
	}
}

func verifyPage(bpm *bufferpool.BufferPoolManager, op *ownedPage) error {
	p, err := bpm.FetchPage(op.id)
	if err != nil {
		return err
	}
	got := bx.U32(p.Data())
	if err := bpm.UnpinPage(op.id, false); err != nil {
		return err
	}
	if got != op.counter {
		return fmt.Errorf("verify page %d: counter %d, want %d", op.id, got, op.counter)
	}
	return nil
}
