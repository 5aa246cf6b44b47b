// Package engine drives parallel evaluation of a model over a dataset.
package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// chunksPerWorker over-partitions the work so uneven events balance out.
const chunksPerWorker = 4

// Pool is a fixed-size fan-out over index ranges.
type Pool struct {
	workers int
}

// NewPool creates a pool of the given size. workers <= 0 means all CPUs.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers}
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Run splits [0, n) into contiguous chunks and calls fn on each, at most
// Workers at a time. It returns once every started chunk has finished,
// with the first error if any; chunks not yet started are skipped after an error.
func (p *Pool) Run(n int, fn func(lo, hi int) error) error {
	if n == 0 {
		return nil
	}
	if p.workers == 1 {
		return fn(0, n)
	}
	size := max(1, (n+p.workers*chunksPerWorker-1)/(p.workers*chunksPerWorker))

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(p.workers)
	for lo := 0; lo < n && ctx.Err() == nil; lo += size {
		hi := min(lo+size, n)
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			return fn(lo, hi)
		})
	}
	return g.Wait()
}
