package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// InitializationError means a capability could not be loaded. It is fatal:
// the session must not start.
type InitializationError struct {
	Capability string
	Err        error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize %s: %v", e.Capability, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// Loader produces a capability. It should honor ctx, but Load enforces the
// time bound even when it does not.
type Loader[T any] func(ctx context.Context) (T, error)

// Load runs loader with a timeout. A loader that finishes after the timeout
// has its result closed if it implements io.Closer.
func Load[T any](ctx context.Context, name string, timeout time.Duration, loader Loader[T]) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res = result{err: fmt.Errorf("loader panic: %v", r)}
			}
			done <- res
		}()
		res.value, res.err = loader(ctx)
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return zero, &InitializationError{Capability: name, Err: res.err}
		}
		return res.value, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				closeValue(res.value)
			}
		}()
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		return zero, &InitializationError{Capability: name, Err: err}
	}
}

func closeValue(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

// Task is one named capability load, bound to its destination.
type Task struct {
	name    string
	backend string
	run     func(ctx context.Context, timeout time.Duration) error
	release func()
}

// Bind creates a Task that stores the loaded value in dst.
func Bind[T any](name, backend string, dst *T, loader Loader[T]) Task {
	loaded := false
	return Task{
		name:    name,
		backend: backend,
		run: func(ctx context.Context, timeout time.Duration) error {
			v, err := Load(ctx, name, timeout, loader)
			if err != nil {
				return err
			}
			*dst = v
			loaded = true
			return nil
		},
		release: func() {
			if loaded {
				closeValue(*dst)
				var zero T
				*dst = zero
				loaded = false
			}
		},
	}
}

// Join loads every task in parallel, each bounded by timeout. If any load
// fails the ones that succeeded are closed and the first failure is
// returned as *InitializationError.
func (r *Registry) Join(ctx context.Context, timeout time.Duration, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		r.update(task.name, task.backend, StateLoading, nil, 0)
		g.Go(func() error {
			start := time.Now()
			err := task.run(gctx, timeout)
			took := time.Since(start)
			if err != nil {
				r.update(task.name, "", StateFailed, err, took)
				r.log.Error("capability failed to load",
					slog.String("capability", task.name),
					slog.Duration("elapsed", took),
					slog.String("error", err.Error()))
				return err
			}
			r.update(task.name, "", StateReady, nil, took)
			r.log.Info("capability loaded",
				slog.String("capability", task.name),
				slog.String("backend", task.backend),
				slog.Duration("elapsed", took))
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		return nil
	}
	for _, task := range tasks {
		task.release()
	}
	var initErr *InitializationError
	if !errors.As(err, &initErr) {
		err = &InitializationError{Capability: "unknown", Err: err}
	}
	return err
}
