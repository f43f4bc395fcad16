// Package workerpool is a small bounded goroutine pool for CPU-bound work
// that must not run on the same goroutines driving network I/O: vault
// encryption, folder archival, and full-file hashing (spec.md §5, §9's
// "async vs. blocking" note).
//
// Grounded in the teacher's cmd/modfetch/main.go batch-download pool (a
// fixed number of goroutines pulling jobItem values off an unbuffered
// channel, coordinated by golang.org/x/sync/errgroup), generalized from a
// download-specific job type into a plain func() error unit of work.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs submitted functions on a fixed-size set of goroutines.
type Pool struct {
	size int
}

// New returns a Pool sized to n goroutines, clamped to at least 1.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{size: n}
}

// Run executes every job in jobs across the pool's goroutines, returning
// the first error encountered (later jobs already in flight still finish;
// a job's own context is cancelled via gctx once the first failure
// surfaces, matching errgroup.WithContext's convention).
func (p *Pool) Run(ctx context.Context, jobs []func(ctx context.Context) error) error {
	if len(jobs) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan func(ctx context.Context) error)

	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case job, ok := <-queue:
					if !ok {
						return nil
					}
					if err := job(gctx); err != nil {
						return err
					}
				}
			}
		})
	}

	g.Go(func() error {
		defer close(queue)
		for _, j := range jobs {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case queue <- j:
			}
		}
		return nil
	})

	return g.Wait()
}

// Submit runs a single blocking job on the pool and waits for its result,
// a convenience for callers (e.g. the vault cryptor) that just want "run
// this CPU-bound function off the caller's goroutine" without building a
// job slice.
func (p *Pool) Submit(ctx context.Context, job func(ctx context.Context) error) error {
	return p.Run(ctx, []func(ctx context.Context) error{job})
}
