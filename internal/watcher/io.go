package watcher

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"livedirs/internal/promise"
	"livedirs/internal/snapshot"
)

// CreateFile creates an empty file at path, failing if it already
// exists, and resolves to its modification time.
func (worker *Worker) CreateFile(path string) *promise.Promise[time.Time] {
	return Submit(worker, func() (time.Time, error) {
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return time.Time{}, err
		}
		if err := file.Close(); err != nil {
			return time.Time{}, err
		}
		return modTime(path)
	})
}

// CreateDirectory creates a single directory at path.
func (worker *Worker) CreateDirectory(path string) *promise.Promise[struct{}] {
	return Submit(worker, func() (struct{}, error) {
		return struct{}{}, os.Mkdir(path, 0o755)
	})
}

// WriteFile replaces the file's content and resolves to the resulting
// modification time.
func (worker *Worker) WriteFile(path string, content []byte) *promise.Promise[time.Time] {
	return Submit(worker, func() (time.Time, error) {
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return time.Time{}, err
		}
		return modTime(path)
	})
}

// ReadFile resolves to the file's content.
func (worker *Worker) ReadFile(path string) *promise.Promise[[]byte] {
	return Submit(worker, func() ([]byte, error) {
		return os.ReadFile(path)
	})
}

// Delete removes the file or empty directory at path. A path that is
// already gone resolves successfully.
func (worker *Worker) Delete(path string) *promise.Promise[struct{}] {
	return Submit(worker, func() (struct{}, error) {
		err := os.Remove(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
}

// DeleteTree removes path and everything underneath it.
func (worker *Worker) DeleteTree(path string) *promise.Promise[struct{}] {
	return Submit(worker, func() (struct{}, error) {
		return struct{}{}, os.RemoveAll(path)
	})
}

// Snapshot scans the subtree rooted at path on the worker goroutine.
func (worker *Worker) Snapshot(path string) *promise.Promise[*snapshot.Node] {
	return Submit(worker, func() (*snapshot.Node, error) {
		return snapshot.Scan(path)
	})
}

func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
