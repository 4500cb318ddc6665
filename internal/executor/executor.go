// Package executor defines the client execution context that model
// mutation and completion callbacks are confined to.
package executor

import "sync"

// Executor runs a submitted task exactly once, eventually, preserving the
// order in which independent tasks were submitted.
type Executor interface {
	Execute(task func())
}

// Func adapts a plain function to the Executor interface.
type Func func(task func())

func (f Func) Execute(task func()) {
	f(task)
}

// Direct runs tasks inline on the submitting goroutine.
var Direct Executor = Func(func(task func()) {
	task()
})

// Serial runs tasks one at a time on a single dedicated goroutine, in
// submission order. It is the standalone equivalent of a GUI event thread.
// The queue is unbounded, so a running task may enqueue follow-up work
// without ever blocking, no matter how many tasks other goroutines have
// submitted in the meantime.
type Serial struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func NewSerial() *Serial {
	serial := &Serial{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go serial.run()
	return serial
}

func (serial *Serial) Execute(task func()) {
	if serial == nil || task == nil {
		return
	}
	serial.mu.Lock()
	if serial.closed {
		serial.mu.Unlock()
		return
	}
	serial.queue = append(serial.queue, task)
	serial.mu.Unlock()

	select {
	case serial.wake <- struct{}{}:
	default:
	}
}

// Close stops the queue after already-submitted tasks have run.
func (serial *Serial) Close() {
	if serial == nil {
		return
	}
	serial.mu.Lock()
	alreadyClosed := serial.closed
	serial.closed = true
	serial.mu.Unlock()

	if !alreadyClosed {
		select {
		case serial.wake <- struct{}{}:
		default:
		}
	}
	<-serial.done
}

func (serial *Serial) run() {
	defer close(serial.done)
	for {
		serial.mu.Lock()
		if len(serial.queue) == 0 {
			if serial.closed {
				serial.mu.Unlock()
				return
			}
			serial.mu.Unlock()
			<-serial.wake
			continue
		}
		task := serial.queue[0]
		serial.queue = serial.queue[1:]
		serial.mu.Unlock()

		task()
	}
}
