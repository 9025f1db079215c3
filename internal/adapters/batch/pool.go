// Package batch provides a bounded-concurrency pool for per-item batch
// work. Batch operations keep per-item failure isolation: the callback
// owns its own error handling and one bad item never aborts the run.
package batch

import (
	"context"
	"sync"
)

// Pool fans items out to at most workers goroutines. A Pool with one
// worker degenerates to a plain sequential loop, which is the engine's
// default for batch rescoring.
type Pool struct {
	workers int
}

// NewPool creates a pool. Worker counts below one are clamped to one.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Workers reports the configured concurrency bound.
func (p *Pool) Workers() int {
	return p.workers
}

// ForEach invokes fn for every index in [0, n), honoring ctx: once the
// context is done, remaining items are skipped. It returns when all
// dispatched items have finished.
func (p *Pool) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	if p.workers == 1 {
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				return
			}
			fn(ctx, i)
		}
		return
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				fn(ctx, i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		indexes <- i
	}
	close(indexes)
	wg.Wait()
}
