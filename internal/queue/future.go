package queue

import (
	"context"
	"sync"
)

// Future is the caller's handle on a submitted task. It settles exactly
// once: either with the operation's result or with the final error after
// retries are exhausted.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(value any) {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
}

func (f *Future) reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is canceled.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result is one settled outcome in a batch.
type Result struct {
	Value any
	Err   error
}

// WaitAll waits for every future and returns each outcome in order. A
// rejected future never hides its siblings' results, so partial success
// stays observable.
func WaitAll(ctx context.Context, futures []*Future) ([]Result, error) {
	results := make([]Result, len(futures))
	for i, f := range futures {
		value, err := f.Wait(ctx)
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		results[i] = Result{Value: value, Err: err}
	}
	return results, nil
}
