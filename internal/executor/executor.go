// Package executor runs independent units of work in parallel while
// preserving the caller's ordering: results are gathered in input order
// regardless of completion order.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Task is one unit of work submitted to the executor. It must return a
// result and an error; a non-nil error marks that task failed.
type Task func(ctx context.Context) (interface{}, error)

// Workers resolves a requested worker count to an actual goroutine cap,
// matching the convention: -1 means "all logical CPUs minus one", 0 or 1
// means sequential execution, n>1 means exactly n workers.
func Workers(requested int) int {
	switch {
	case requested == -1:
		if n := runtime.NumCPU() - 1; n > 1 {
			return n
		}
		return 1
	case requested <= 1:
		return 1
	default:
		return requested
	}
}

// defaultMinParallelTasks is the task-count floor below which Map runs
// serially even when Workers asks for more than one: fork/dispatch
// overhead would dominate a handful of tiny tasks.
const defaultMinParallelTasks = 4

// Options configures a Map call.
type Options struct {
	// Workers is the worker-count request, resolved via the Workers func.
	Workers int
	// IgnoreErrors, when true, lets Map continue gathering results after a
	// task fails instead of cancelling the remaining tasks; failed slots
	// carry their error in Result.Err and a nil Value.
	IgnoreErrors bool
	// PerTaskTimeout bounds each individual task's wall-clock run, zero
	// means no per-task deadline beyond the parent context's.
	PerTaskTimeout time.Duration
	// MinParallelTasks is the task-count floor below which Map degrades
	// to the serial path regardless of Workers. Zero uses
	// defaultMinParallelTasks.
	MinParallelTasks int
}

// Result is one task's outcome, at the same index as its input Task.
type Result struct {
	Value interface{}
	Err   error
}

// Map runs tasks concurrently (bounded by Options.Workers) and returns
// their results in the same order as the input slice, regardless of
// completion order — this is the order-preserving scatter/gather the
// parallel backtester facade and the factor analyzer's batch mode both
// depend on.
func Map(ctx context.Context, tasks []Task, opts Options) ([]Result, error) {
	n := len(tasks)
	results := make([]Result, n)
	if n == 0 {
		return results, nil
	}

	workers := Workers(opts.Workers)
	minParallel := opts.MinParallelTasks
	if minParallel <= 0 {
		minParallel = defaultMinParallelTasks
	}
	if workers == 1 || n < minParallel {
		for i, task := range tasks {
			v, err := runOne(ctx, task, opts.PerTaskTimeout)
			results[i] = Result{Value: v, Err: err}
			if err != nil && !opts.IgnoreErrors {
				return results, fmt.Errorf("executor: task %d failed: %w", i, err)
			}
		}
		return results, nil
	}

	sem := semaphore.NewWeighted(int64(workers))
	var g *errgroup.Group
	var gctx context.Context
	if opts.IgnoreErrors {
		g, gctx = &errgroup.Group{}, ctx
	} else {
		g, gctx = errgroup.WithContext(ctx)
	}

	for i, task := range tasks {
		i, task := i, task
		if err := sem.Acquire(gctx, 1); err != nil {
			results[i] = Result{Err: err}
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			v, err := runOne(gctx, task, opts.PerTaskTimeout)
			results[i] = Result{Value: v, Err: err}
			if err != nil && !opts.IgnoreErrors {
				return fmt.Errorf("executor: task %d failed: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func runOne(ctx context.Context, task Task, timeout time.Duration) (interface{}, error) {
	if timeout <= 0 {
		return task(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return task(tctx)
}
