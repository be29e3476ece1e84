// Package batch runs work in fixed-size groups. Every task in a group runs
// concurrently and the group waits for all of them. Groups run one after
// another with a pause in between.
package batch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner holds the batch size and the pause between batches.
type Runner struct {
	Size  int
	Delay time.Duration

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRunner(size int, delay time.Duration) *Runner {
	if size <= 0 {
		size = 1
	}
	return &Runner{Size: size, Delay: delay}
}

// Run calls fn for every index in [0, n). The returned slice has one entry per
// index, holding that task's error (nil on success). A failing task never
// cancels its siblings. If ctx is cancelled, unstarted batches are skipped and
// their slots carry ctx.Err().
func (r *Runner) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	size := r.Size
	if size <= 0 {
		size = 1
	}

	for start := 0; start < n; start += size {
		if start > 0 && r.Delay > 0 {
			if err := r.wait(ctx, r.Delay); err != nil {
				fillRemaining(errs, start, err)
				return errs
			}
		}
		if err := ctx.Err(); err != nil {
			fillRemaining(errs, start, err)
			return errs
		}

		end := start + size
		if end > n {
			end = n
		}

		var g errgroup.Group
		g.SetLimit(size)
		for i := start; i < end; i++ {
			g.Go(func() error {
				errs[i] = fn(ctx, i)
				return nil
			})
		}
		_ = g.Wait()
	}

	return errs
}

func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func fillRemaining(errs []error, from int, err error) {
	for i := from; i < len(errs); i++ {
		errs[i] = err
	}
}

// Count returns how many entries are non-nil.
func Count(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
