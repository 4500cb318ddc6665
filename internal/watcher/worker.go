// Package watcher runs a dedicated goroutine that owns the native
// filesystem-notification handle and a FIFO queue of I/O tasks. All
// blocking filesystem work funnels through this one goroutine; results
// come back as promises completed on the client executor.
package watcher

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"livedirs/internal/executor"
	"livedirs/internal/logging"
	"livedirs/internal/metrics"
	"livedirs/internal/promise"
)

// batchLimit bounds how many pending notifications are folded into one
// batch before the callback fires.
const batchLimit = 128

var ErrShuttingDown = errors.New("watcher is shutting down")

// Notification is one raw filesystem event.
type Notification struct {
	Path string
	Op   fsnotify.Op
}

// Batch groups notifications that were pending at the same time.
// Overflow means the kernel queue spilled and the events are unknown;
// the consumer must fall back to a full rescan.
type Batch struct {
	Events   []Notification
	Overflow bool
}

type Options struct {
	// Executor completes promises returned by Submit. Nil means direct
	// completion on the worker goroutine.
	Executor executor.Executor
	OnBatch  func(Batch)
	OnError  func(error)
	Logger   *logging.Logger
	Registry *metrics.Registry
}

// Worker owns the notification handle. Watch, Unwatch and Execute may
// be called from any goroutine; everything else happens on the worker's
// own goroutine.
type Worker struct {
	notifier *fsnotify.Watcher
	executor executor.Executor
	onBatch  func(Batch)
	onError  func(error)
	logger   *logging.Logger
	registry *metrics.Registry

	mu       sync.Mutex
	queue    []func()
	watched  map[string]struct{}
	shutdown bool

	wake   chan struct{}
	closed chan struct{}
}

func New(options Options) (*Worker, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	exec := options.Executor
	if exec == nil {
		exec = executor.Direct
	}

	worker := &Worker{
		notifier: notifier,
		executor: exec,
		onBatch:  options.OnBatch,
		onError:  options.OnError,
		logger:   options.Logger,
		registry: registry,
		watched:  make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	go worker.loop()
	return worker, nil
}

// Watch registers path for notifications. Watches are not recursive;
// the caller registers each directory it mirrors. Registering a path
// that is already watched is a no-op, so re-registration during a
// rescan costs nothing and is counted once.
func (worker *Worker) Watch(path string) error {
	worker.mu.Lock()
	defer worker.mu.Unlock()
	if _, ok := worker.watched[path]; ok {
		return nil
	}
	if err := worker.notifier.Add(path); err != nil {
		return err
	}
	worker.watched[path] = struct{}{}
	worker.registry.AddActiveWatches(1)
	if worker.logger != nil {
		worker.logger.Debug("watch added", map[string]string{"path": path})
	}
	return nil
}

// Unwatch removes the registration for path. A path that was never
// watched is a no-op, and a watch the kernel already dropped (the
// directory was deleted) is still accounted for.
func (worker *Worker) Unwatch(path string) error {
	worker.mu.Lock()
	defer worker.mu.Unlock()
	if _, ok := worker.watched[path]; !ok {
		return nil
	}
	delete(worker.watched, path)
	worker.registry.AddActiveWatches(-1)
	if worker.logger != nil {
		worker.logger.Debug("watch removed", map[string]string{"path": path})
	}
	if err := worker.notifier.Remove(path); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return err
	}
	return nil
}

// Execute queues task for the worker goroutine. Tasks run in submission
// order, interleaved with event delivery.
func (worker *Worker) Execute(task func()) error {
	worker.mu.Lock()
	if worker.shutdown {
		worker.mu.Unlock()
		return ErrShuttingDown
	}
	worker.queue = append(worker.queue, task)
	worker.mu.Unlock()

	select {
	case worker.wake <- struct{}{}:
	default:
	}
	return nil
}

// Submit queues task and returns a promise for its result, completed on
// the worker's client executor.
func Submit[T any](worker *Worker, task func() (T, error)) *promise.Promise[T] {
	result := promise.New[T](worker.executor)
	err := worker.Execute(func() {
		value, err := task()
		if err != nil {
			result.Reject(err)
			return
		}
		result.Resolve(value)
	})
	if err != nil {
		result.Reject(err)
	}
	return result
}

// Shutdown asks the worker to stop once the queued tasks have drained.
// Further Execute calls are rejected immediately.
func (worker *Worker) Shutdown() {
	worker.mu.Lock()
	worker.shutdown = true
	worker.mu.Unlock()

	select {
	case worker.wake <- struct{}{}:
	default:
	}
}

// Done is closed after the worker has stopped and released the
// notification handle.
func (worker *Worker) Done() <-chan struct{} {
	return worker.closed
}

func (worker *Worker) loop() {
	for {
		worker.drainTasks()
		if worker.finished() {
			break
		}

		select {
		case event, ok := <-worker.notifier.Events:
			if !ok {
				worker.markShutdown()
				continue
			}
			worker.emitBatch(event)
		case err, ok := <-worker.notifier.Errors:
			if !ok {
				worker.markShutdown()
				continue
			}
			worker.handleError(err)
		case <-worker.wake:
		}
	}

	if err := worker.notifier.Close(); err != nil {
		worker.emitError(err)
	}
	close(worker.closed)
}

// drainTasks runs every queued task in FIFO order, popping one at a
// time so tasks enqueued by tasks still run in this pass.
func (worker *Worker) drainTasks() {
	for {
		worker.mu.Lock()
		if len(worker.queue) == 0 {
			worker.mu.Unlock()
			return
		}
		task := worker.queue[0]
		worker.queue = worker.queue[1:]
		worker.mu.Unlock()

		worker.runTask(task)
	}
}

func (worker *Worker) runTask(task func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			worker.registry.IncTaskFailed()
			worker.emitError(fmt.Errorf("task panicked: %v", recovered))
		}
	}()
	task()
	worker.registry.IncTaskExecuted()
}

// emitBatch folds the triggering event together with whatever else is
// already pending, up to batchLimit, and hands the batch off.
func (worker *Worker) emitBatch(first fsnotify.Event) {
	events := []Notification{{Path: first.Name, Op: first.Op}}
	for len(events) < batchLimit {
		select {
		case event, ok := <-worker.notifier.Events:
			if !ok {
				worker.markShutdown()
				worker.deliver(Batch{Events: events})
				return
			}
			events = append(events, Notification{Path: event.Name, Op: event.Op})
		default:
			worker.deliver(Batch{Events: events})
			return
		}
	}
	worker.deliver(Batch{Events: events})
}

func (worker *Worker) deliver(batch Batch) {
	worker.registry.IncBatchEmitted()
	if worker.onBatch != nil {
		worker.onBatch(batch)
	}
}

func (worker *Worker) handleError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		worker.registry.IncOverflow()
		if worker.logger != nil {
			worker.logger.Warn("event queue overflowed, requesting rescan", nil)
		}
		worker.deliver(Batch{Overflow: true})
		return
	}
	worker.emitError(err)
}

func (worker *Worker) emitError(err error) {
	if worker.logger != nil {
		worker.logger.Error("watcher error", map[string]string{"error": err.Error()})
	}
	if worker.onError != nil {
		worker.onError(err)
	}
}

func (worker *Worker) markShutdown() {
	worker.mu.Lock()
	worker.shutdown = true
	worker.mu.Unlock()
}

func (worker *Worker) finished() bool {
	worker.mu.Lock()
	defer worker.mu.Unlock()
	return worker.shutdown && len(worker.queue) == 0
}
