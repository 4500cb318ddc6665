// Package live ties the directory mirror to a filesystem watcher: it
// keeps the model synchronized with external changes and offers an I/O
// facility whose writes flow back into the model tagged with their
// originator.
package live

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"

	"livedirs/internal/event"
	"livedirs/internal/executor"
	"livedirs/internal/logging"
	"livedirs/internal/metrics"
	"livedirs/internal/promise"
	"livedirs/internal/snapshot"
	"livedirs/internal/tree"
	"livedirs/internal/watcher"
)

// externalOrigin tags model edits caused by changes nobody made through
// the I/O facility.
type externalOrigin struct{}

func (externalOrigin) String() string { return "external" }

// External is the default origin for externally-observed changes.
var External externalOrigin

type Options struct {
	// ExternalOrigin overrides the token attached to edits caused by
	// outside filesystem activity. Defaults to External.
	ExternalOrigin any
	// Executor is the client execution context. Every model mutation and
	// promise callback happens on it. Defaults to direct execution, which
	// is only safe for single-goroutine use.
	Executor executor.Executor
	Logger   *logging.Logger
	Registry *metrics.Registry
}

// LiveDirs owns a tree model, a watcher worker, and the plumbing
// between them.
type LiveDirs struct {
	external any
	executor executor.Executor
	logger   *logging.Logger
	registry *metrics.Registry

	model  *tree.Model
	worker *watcher.Worker
	io     *IO
	errors *event.Bus[error]
}

func New(ctx context.Context, options Options) (*LiveDirs, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	external := options.ExternalOrigin
	if external == nil {
		external = External
	}
	exec := options.Executor
	if exec == nil {
		exec = executor.Direct
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}

	dirs := &LiveDirs{
		external: external,
		executor: exec,
		logger:   options.Logger,
		registry: registry,
		model: tree.NewModel(ctx, tree.Options{
			Logger:   options.Logger,
			Registry: registry,
		}),
		errors: event.NewBus[error](ctx, event.BusOptions{Name: "live_errors", Registry: registry}),
	}
	dirs.io = &IO{dirs: dirs, origin: external}

	worker, err := watcher.New(watcher.Options{
		Executor: exec,
		OnBatch: func(batch watcher.Batch) {
			exec.Execute(func() { dirs.processBatch(batch) })
		},
		OnError: func(err error) {
			dirs.errors.Publish(err)
		},
		Logger:   options.Logger,
		Registry: registry,
	})
	if err != nil {
		dirs.model.Close()
		dirs.errors.Close()
		return nil, err
	}
	dirs.worker = worker

	go dirs.forwardModelErrors()
	return dirs, nil
}

// Model exposes the mirror and its edit streams.
func (dirs *LiveDirs) Model() *tree.Model { return dirs.model }

// IO returns the facility for filesystem changes attributed to the
// external origin. Use WithOrigin for a distinct originator.
func (dirs *LiveDirs) IO() *IO { return dirs.io }

// Errors merges watcher failures and model inconsistencies.
func (dirs *LiveDirs) Errors() *event.Bus[error] { return dirs.errors }

// AddTopLevelDirectory starts mirroring the subtree rooted at path. The
// returned promise resolves once the initial scan has populated the
// model.
func (dirs *LiveDirs) AddTopLevelDirectory(path string) *promise.Promise[struct{}] {
	if _, err := dirs.model.AddTopLevelDirectory(path); err != nil {
		return promise.Failed[struct{}](dirs.executor, err)
	}
	// a failed watch leaves the root registered; the caller may retry
	// via Refresh
	if err := dirs.worker.Watch(path); err != nil {
		return promise.Failed[struct{}](dirs.executor, err)
	}
	return dirs.Refresh(path)
}

// Refresh rescans path and reconciles the model against the result,
// attributing any resulting edits to the external origin.
func (dirs *LiveDirs) Refresh(path string) *promise.Promise[struct{}] {
	return promise.Map(dirs.worker.Snapshot(path), func(node *snapshot.Node) (struct{}, error) {
		dirs.model.Sync(node, dirs.external)
		dirs.watchTree(node)
		return struct{}{}, nil
	})
}

// refreshAndReport is the fire-and-forget form of Refresh: nobody is
// waiting on the promise, so a failed rescan goes to the error stream.
func (dirs *LiveDirs) refreshAndReport(path string) {
	dirs.Refresh(path).Then(func(_ struct{}, err error) {
		if err != nil {
			dirs.errors.Publish(err)
		}
	})
}

// Dispose stops watching. Queued I/O tasks still run; the returned
// channel closes when the worker has stopped.
func (dirs *LiveDirs) Dispose() <-chan struct{} {
	dirs.worker.Shutdown()
	return dirs.worker.Done()
}

// watchTree registers watches for every directory in the snapshot.
// Registration failures are reported, not fatal: the next refresh will
// retry.
func (dirs *LiveDirs) watchTree(node *snapshot.Node) {
	if !node.Dir {
		return
	}
	if err := dirs.worker.Watch(node.Path); err != nil {
		dirs.errors.Publish(err)
	}
	for _, child := range node.Children {
		dirs.watchTree(child)
	}
}

// processBatch applies a batch of filesystem notifications to the
// model. Runs on the client executor.
func (dirs *LiveDirs) processBatch(batch watcher.Batch) {
	if batch.Overflow {
		for _, root := range dirs.model.Roots() {
			dirs.refreshAndReport(root.Path())
		}
		return
	}
	for _, notification := range batch.Events {
		dirs.processNotification(notification)
	}
}

func (dirs *LiveDirs) processNotification(notification watcher.Notification) {
	path := notification.Path
	if !dirs.model.ContainsPrefixOf(path) {
		return
	}

	switch {
	case notification.Op.Has(fsnotify.Remove) || notification.Op.Has(fsnotify.Rename):
		dirs.model.Delete(path, dirs.external)
		dirs.worker.Unwatch(path)

	case notification.Op.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err != nil {
			// gone before we could look at it
			dirs.model.Delete(path, dirs.external)
			return
		}
		if info.IsDir() {
			dirs.model.AddDirectory(path, dirs.external)
			if err := dirs.worker.Watch(path); err != nil {
				dirs.errors.Publish(err)
			}
			// contents may predate the watch registration
			dirs.refreshAndReport(path)
		} else {
			dirs.model.AddFile(path, dirs.external, info.ModTime())
		}

	case notification.Op.Has(fsnotify.Write) || notification.Op.Has(fsnotify.Chmod):
		info, err := os.Stat(path)
		if err != nil {
			dirs.model.Delete(path, dirs.external)
			return
		}
		if !info.IsDir() {
			dirs.model.UpdateModificationTime(path, info.ModTime(), dirs.external)
		}
	}
}

func (dirs *LiveDirs) forwardModelErrors() {
	failures, cancel := dirs.model.Errors().Subscribe()
	defer cancel()
	for err := range failures {
		dirs.errors.Publish(err)
	}
}
