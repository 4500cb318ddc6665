// Package promise provides a completion value whose callbacks run on a
// default execution context captured at construction time. Promises derived
// through Then or Map inherit the same default, so a caller using only the
// unqualified chaining operations never observes a callback outside the
// client context.
package promise

import (
	"sync"

	"livedirs/internal/executor"
)

// Promise is a write-once asynchronous result of type T.
type Promise[T any] struct {
	mu        sync.Mutex
	exec      executor.Executor
	completed bool
	value     T
	err       error
	callbacks []continuation[T]
}

type continuation[T any] struct {
	exec executor.Executor
	fn   func(T, error)
}

// New creates an incomplete promise whose callbacks run on defaultExecutor.
func New[T any](defaultExecutor executor.Executor) *Promise[T] {
	if defaultExecutor == nil {
		defaultExecutor = executor.Direct
	}
	return &Promise[T]{exec: defaultExecutor}
}

// Resolved returns an already-completed promise.
func Resolved[T any](defaultExecutor executor.Executor, value T) *Promise[T] {
	p := New[T](defaultExecutor)
	p.Resolve(value)
	return p
}

// Failed returns an already-failed promise.
func Failed[T any](defaultExecutor executor.Executor, err error) *Promise[T] {
	p := New[T](defaultExecutor)
	p.Reject(err)
	return p
}

// Resolve completes the promise with a value. Later completions are ignored.
func (p *Promise[T]) Resolve(value T) {
	p.complete(value, nil)
}

// Reject completes the promise with an error. Later completions are ignored.
func (p *Promise[T]) Reject(err error) {
	var zero T
	p.complete(zero, err)
}

func (p *Promise[T]) complete(value T, err error) {
	p.mu.Lock()
	if p.completed {
		p.mu.Unlock()
		return
	}
	p.completed = true
	p.value = value
	p.err = err
	callbacks := p.callbacks
	p.callbacks = nil
	p.mu.Unlock()

	for _, callback := range callbacks {
		p.dispatch(callback, value, err)
	}
}

// Then registers a continuation on the default executor. The returned
// promise carries the same default executor and completes with this
// promise's outcome after the continuation has run.
func (p *Promise[T]) Then(fn func(T, error)) *Promise[T] {
	return p.ThenOn(nil, fn)
}

// ThenOn is Then with an explicit executor for this one continuation.
func (p *Promise[T]) ThenOn(on executor.Executor, fn func(T, error)) *Promise[T] {
	if on == nil {
		on = p.exec
	}
	derived := New[T](p.exec)

	p.register(continuation[T]{exec: on, fn: func(value T, err error) {
		if fn != nil {
			fn(value, err)
		}
		if err != nil {
			derived.Reject(err)
		} else {
			derived.Resolve(value)
		}
	}})
	return derived
}

func (p *Promise[T]) register(callback continuation[T]) {
	p.mu.Lock()
	if !p.completed {
		p.callbacks = append(p.callbacks, callback)
		p.mu.Unlock()
		return
	}
	value, err := p.value, p.err
	p.mu.Unlock()

	p.dispatch(callback, value, err)
}

func (p *Promise[T]) dispatch(callback continuation[T], value T, err error) {
	on := callback.exec
	if on == nil {
		on = p.exec
	}
	on.Execute(func() {
		callback.fn(value, err)
	})
}

// Executor returns the default executor of this promise.
func (p *Promise[T]) Executor() executor.Executor {
	return p.exec
}

// Map derives a promise of a different type, transforming the value on the
// source promise's default executor. Errors propagate untransformed.
func Map[T, U any](p *Promise[T], fn func(T) (U, error)) *Promise[U] {
	derived := New[U](p.exec)
	p.register(continuation[T]{fn: func(value T, err error) {
		if err != nil {
			derived.Reject(err)
			return
		}
		mapped, mapErr := fn(value)
		if mapErr != nil {
			derived.Reject(mapErr)
			return
		}
		derived.Resolve(mapped)
	}})
	return derived
}
