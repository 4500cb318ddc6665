package live

import (
	"time"

	"livedirs/internal/promise"
)

// IO performs filesystem changes through the watcher worker and records
// each one in the model before the watcher's own notification echoes
// back. Edits caused by an IO call carry the facility's origin token,
// so a consumer can tell its own writes from everyone else's.
type IO struct {
	dirs   *LiveDirs
	origin any
}

// WithOrigin returns a facility whose operations are attributed to
// origin.
func (io *IO) WithOrigin(origin any) *IO {
	return &IO{dirs: io.dirs, origin: origin}
}

// Origin returns the token attached to this facility's edits.
func (io *IO) Origin() any { return io.origin }

// CreateFile creates an empty file and resolves to its modification
// time once the model reflects it.
func (io *IO) CreateFile(path string) *promise.Promise[time.Time] {
	return io.dirs.worker.CreateFile(path).Then(func(modified time.Time, err error) {
		if err == nil {
			io.dirs.model.AddFile(path, io.origin, modified)
		}
	})
}

// CreateDirectory creates a directory, records it, and starts watching
// it.
func (io *IO) CreateDirectory(path string) *promise.Promise[struct{}] {
	return io.dirs.worker.CreateDirectory(path).Then(func(_ struct{}, err error) {
		if err != nil {
			return
		}
		io.dirs.model.AddDirectory(path, io.origin)
		if watchErr := io.dirs.worker.Watch(path); watchErr != nil {
			io.dirs.errors.Publish(watchErr)
		}
	})
}

// WriteFile replaces the file's content. The model entry is created or
// its timestamp advanced, attributed to this facility's origin.
func (io *IO) WriteFile(path string, content []byte) *promise.Promise[time.Time] {
	return io.dirs.worker.WriteFile(path, content).Then(func(modified time.Time, err error) {
		if err == nil {
			io.dirs.model.AddFile(path, io.origin, modified)
		}
	})
}

// ReadFile resolves to the file's content. Reads leave the model
// untouched.
func (io *IO) ReadFile(path string) *promise.Promise[[]byte] {
	return io.dirs.worker.ReadFile(path)
}

// Delete removes a file or empty directory and drops it from the
// model.
func (io *IO) Delete(path string) *promise.Promise[struct{}] {
	return io.dirs.worker.Delete(path).Then(func(_ struct{}, err error) {
		if err == nil {
			io.dirs.model.Delete(path, io.origin)
		}
	})
}

// DeleteTree removes a whole subtree and drops it from the model.
func (io *IO) DeleteTree(path string) *promise.Promise[struct{}] {
	return io.dirs.worker.DeleteTree(path).Then(func(_ struct{}, err error) {
		if err == nil {
			io.dirs.model.Delete(path, io.origin)
		}
	})
}
