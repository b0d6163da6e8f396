package sandbox

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// ResourceLimits bounds one sandboxed strategy invocation: a wall-clock
// deadline and, on Unix, a CPU-time rlimit (see resourcelimiter_unix.go;
// best-effort elsewhere). No address-space rlimit is set, so
// MaxMemoryBytes is not enforced.
type ResourceLimits struct {
	WallClock      time.Duration
	MaxMemoryBytes int64
}

// Limiter caps both the wall-clock duration of any single sandboxed
// invocation and the number of invocations that may run concurrently,
// using golang.org/x/sync/semaphore the same way internal/executor does
// for its worker-count cap.
type Limiter struct {
	sem    *semaphore.Weighted
	limits ResourceLimits
}

// NewLimiter builds a Limiter allowing at most maxConcurrent simultaneous
// sandboxed invocations, each bounded by limits.
func NewLimiter(maxConcurrent int64, limits ResourceLimits) *Limiter {
	return &Limiter{sem: semaphore.NewWeighted(maxConcurrent), limits: limits}
}

// Run executes fn under the limiter's concurrency cap and wall-clock
// deadline, applying best-effort OS resource limits around the call (see
// applyRlimits, platform-specific).
func (l *Limiter) Run(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("sandbox: acquiring execution slot: %w", err)
	}
	defer l.sem.Release(1)

	runCtx := ctx
	var cancel context.CancelFunc
	if l.limits.WallClock > 0 {
		runCtx, cancel = context.WithTimeout(ctx, l.limits.WallClock)
		defer cancel()
	}

	restore, err := applyRlimits(l.limits)
	if err != nil {
		return nil, fmt.Errorf("sandbox: applying resource limits: %w", err)
	}
	defer restore()

	type outcome struct {
		val interface{}
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(runCtx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-runCtx.Done():
		return nil, fmt.Errorf("sandbox: invocation exceeded wall-clock limit: %w", runCtx.Err())
	}
}
