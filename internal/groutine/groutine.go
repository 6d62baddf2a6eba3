package groutine

import (
	"context"
	"runtime/pprof"

	"golang.org/x/sync/errgroup"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a goroutine with a name attached as a pprof label and a context value.
// Example usage:
//
//	groutine.Go(ctx, "fp-scan", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Task is one unit of a fan-out
type Task[T any] func(ctx context.Context) (T, error)

// TaskError reports which task of a fan-out failed
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string { return e.Err.Error() }
func (e *TaskError) Unwrap() error { return e.Err }

// All runs every task concurrently in named goroutines and returns their results
// in task order once all have succeeded. The first failure is returned immediately
// as a *TaskError and cancels the context handed to the tasks still in flight;
// their results are dropped.
func All[T any](ctx context.Context, name string, tasks []Task[T]) ([]T, error) {
	results := make([]T, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	failed := make(chan error, 1)
	labels := pprof.Labels("goroutine_name", name)

	for i, task := range tasks {
		g.Go(func() error {
			var err error
			pprof.Do(gctx, labels, func(ctx context.Context) {
				results[i], err = task(context.WithValue(ctx, goroutineNameKey, name))
			})
			if err != nil {
				err = &TaskError{Index: i, Err: err}
				select {
				case failed <- err:
				default:
				}
			}
			return err
		})
	}

	// Wait blocks until every task returns, so it runs aside to keep All fail-fast.
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return results, nil
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
