// Package bound wraps remote calls with a deadline so the fallback path is
// always reached instead of hanging. It is the single timeout combinator used
// for every remote operation.
package bound

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrTimeout = errors.New("bound: operation timed out")

type result[T any] struct {
	value T
	err   error
}

// Run executes fn under a deadline derived from timeout. When the deadline
// wins, Run returns ErrTimeout; fn keeps running in the background until its
// context expires, and its result is discarded. Panics inside fn are
// converted to errors so a misbehaving backend can only ever demote the
// caller, never crash it.
func Run[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				ch <- result[T]{zero, fmt.Errorf("bound: panic in operation: %v", r)}
			}
		}()
		value, err := fn(ctx)
		ch <- result[T]{value, err}
	}()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}

// Sleep waits for d or until ctx is cancelled. Used for the simulated local
// network delay.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
