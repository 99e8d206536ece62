package queue

import "context"

// Future is the eventual result of an enqueued [Job].
type Future[T any] struct {
	done    chan struct{}
	val     T
	err     error
	skipped bool
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func skippedFuture[T any]() *Future[T] {
	f := &Future[T]{done: make(chan struct{}), skipped: true}
	close(f.done)
	return f
}

func (f *Future[T]) settle(val T, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Skipped reports whether the job was a duplicate and never ran.
func (f *Future[T]) Skipped() bool {
	return f.skipped
}

// Wait blocks until the future settles or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
