// Package executor runs a list of work items on a bounded worker pool and
// reports one timed result per item.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrTimedOut marks items that did not finish before the batch deadline.
	ErrTimedOut = errors.New("executor: batch timed out")
	// ErrSkipped marks queued items dropped after an earlier failure.
	ErrSkipped = errors.New("executor: skipped after earlier failure")
	// ErrPanic wraps a recovered panic from a worker function.
	ErrPanic = errors.New("executor: worker panicked")
)

// Options configures one Run.
type Options struct {
	Workers int // <= 0 means GOMAXPROCS
	// Timeout bounds the whole batch. Zero means no deadline.
	Timeout time.Duration
	// CancelOnFailure stops dispatching queued items once any item fails.
	// Items already running are never interrupted.
	CancelOnFailure bool
}

// Result is the outcome of one item.
type Result[T, R any] struct {
	Item    T
	OK      bool
	Value   R
	Err     error
	Elapsed time.Duration
}

// Run executes fn for every item and returns results in item order.
// It returns once every dispatched item has finished or the batch deadline
// (or ctx) has passed; unfinished items are reported as failures.
func Run[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), opts Options) []Result[T, R] {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	batchCtx, cancel := ctx, context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		batchCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	results := make([]Result[T, R], len(items))
	started := make([]time.Time, len(items))
	finished := make([]bool, len(items))
	for i := range items {
		results[i].Item = items[i]
	}

	var (
		mu     sync.Mutex
		closed bool
		failed atomic.Bool
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, workers)
	skipped := false

dispatch:
	for i := range items {
		select {
		case sem <- struct{}{}:
		case <-batchCtx.Done():
			break dispatch
		}
		if batchCtx.Err() != nil {
			<-sem
			break
		}
		if opts.CancelOnFailure && failed.Load() {
			<-sem
			skipped = true
			break
		}

		started[i] = time.Now()

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			r := runOne(batchCtx, items[i], fn)
			if !r.OK {
				failed.Store(true)
			}

			mu.Lock()
			defer mu.Unlock()
			if closed {
				return // the caller already reported this item as timed out
			}
			results[i] = r
			finished[i] = true
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-batchCtx.Done():
		// a result that landed together with the deadline still counts
		select {
		case <-done:
		default:
		}
	}

	mu.Lock()
	defer mu.Unlock()
	closed = true

	now := time.Now()
	for i := range results {
		if finished[i] {
			continue
		}
		r := &results[i]
		r.OK = false
		switch {
		case !started[i].IsZero():
			r.Err = deadlineErr(batchCtx)
			r.Elapsed = now.Sub(started[i])
		case skipped:
			r.Err = ErrSkipped
		default:
			r.Err = deadlineErr(batchCtx)
		}
	}

	return results
}

func runOne[T, R any](ctx context.Context, item T, fn func(context.Context, T) (R, error)) (r Result[T, R]) {
	r.Item = item
	begin := time.Now()
	defer func() {
		r.Elapsed = time.Since(begin)
		if p := recover(); p != nil {
			r.OK = false
			r.Err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()

	v, err := fn(ctx, item)
	if err != nil {
		r.Err = err
		return r
	}
	r.OK = true
	r.Value = v
	return r
}

func deadlineErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimedOut
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrTimedOut, ctx.Err())
	}
	return ErrTimedOut
}

// Failed counts results that did not succeed.
func Failed[T, R any](results []Result[T, R]) int {
	n := 0
	for _, r := range results {
		if !r.OK {
			n++
		}
	}
	return n
}
