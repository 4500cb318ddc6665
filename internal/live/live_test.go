package live

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"livedirs/internal/event"
	"livedirs/internal/executor"
	"livedirs/internal/metrics"
	"livedirs/internal/tree"
	"livedirs/internal/watcher"
)

const testTimeout = 3 * time.Second

func newTestDirs(t *testing.T) (*LiveDirs, *executor.Serial) {
	t.Helper()
	serial := executor.NewSerial()
	dirs, err := New(context.Background(), Options{
		Executor: serial,
		Registry: &metrics.Registry{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() {
		select {
		case <-dirs.Dispose():
		case <-time.After(testTimeout):
			t.Error("worker did not stop")
		}
		serial.Close()
	})
	return dirs, serial
}

// onClient runs fn on the client executor and waits for it.
func onClient(t *testing.T, serial *executor.Serial, fn func()) {
	t.Helper()
	done := make(chan struct{})
	serial.Execute(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("client executor stalled")
	}
}

func addRoot(t *testing.T, dirs *LiveDirs, serial *executor.Serial, path string) {
	t.Helper()
	done := make(chan error, 1)
	serial.Execute(func() {
		dirs.AddTopLevelDirectory(path).Then(func(_ struct{}, err error) {
			done <- err
		})
	})
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("add root %s: %v", path, err)
		}
	case <-time.After(testTimeout):
		t.Fatal("initial scan never completed")
	}
}

func awaitEdit(t *testing.T, edits <-chan tree.Edit, match func(tree.Edit) bool) tree.Edit {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case edit := <-edits:
			if match(edit) {
				return edit
			}
		case <-deadline:
			t.Fatal("expected edit never arrived")
			return tree.Edit{}
		}
	}
}

func subscribe(t *testing.T, bus *event.Bus[tree.Edit]) <-chan tree.Edit {
	t.Helper()
	edits, cancel := bus.Subscribe()
	t.Cleanup(cancel)
	return edits
}

func TestInitialScanPopulatesModel(t *testing.T) {
	dirs, serial := newTestDirs(t)
	root := t.TempDir()

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	file := filepath.Join(sub, "present.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	addRoot(t, dirs, serial, root)

	onClient(t, serial, func() {
		if !dirs.Model().Contains(sub) || !dirs.Model().Contains(file) {
			t.Errorf("initial scan missed existing entries")
		}
	})
}

func TestExternalCreateIsObserved(t *testing.T) {
	dirs, serial := newTestDirs(t)
	root := t.TempDir()
	addRoot(t, dirs, serial, root)

	edits := subscribe(t, dirs.Model().Creations())

	target := filepath.Join(root, "outside.txt")
	if err := os.WriteFile(target, []byte("external"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	edit := awaitEdit(t, edits, func(edit tree.Edit) bool {
		return edit.AbsolutePath() == target
	})
	if edit.Origin != External {
		t.Fatalf("expected external origin, got %v", edit.Origin)
	}
}

func TestIOWriteCarriesItsOrigin(t *testing.T) {
	dirs, serial := newTestDirs(t)
	root := t.TempDir()
	addRoot(t, dirs, serial, root)

	edits := subscribe(t, dirs.Model().Creations())

	target := filepath.Join(root, "mine.txt")
	done := make(chan error, 1)
	serial.Execute(func() {
		dirs.IO().WithOrigin("editor-1").WriteFile(target, []byte("payload")).Then(
			func(_ time.Time, err error) { done <- err })
	})
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("write failed: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("write never completed")
	}

	edit := awaitEdit(t, edits, func(edit tree.Edit) bool {
		return edit.AbsolutePath() == target
	})
	if edit.Origin != "editor-1" {
		t.Fatalf("expected origin editor-1, got %v", edit.Origin)
	}
}

func TestExternalDeleteRemovesEntry(t *testing.T) {
	dirs, serial := newTestDirs(t)
	root := t.TempDir()

	target := filepath.Join(root, "doomed.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	addRoot(t, dirs, serial, root)

	edits := subscribe(t, dirs.Model().Deletions())
	if err := os.Remove(target); err != nil {
		t.Fatalf("remove: %v", err)
	}

	awaitEdit(t, edits, func(edit tree.Edit) bool {
		return edit.AbsolutePath() == target
	})
	onClient(t, serial, func() {
		if dirs.Model().Contains(target) {
			t.Errorf("deleted entry still in model")
		}
	})
}

func TestNewDirectoriesAreWatched(t *testing.T) {
	dirs, serial := newTestDirs(t)
	root := t.TempDir()
	addRoot(t, dirs, serial, root)

	edits := subscribe(t, dirs.Model().Creations())

	nested := filepath.Join(root, "nested")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	awaitEdit(t, edits, func(edit tree.Edit) bool {
		return edit.AbsolutePath() == nested
	})

	inner := filepath.Join(nested, "inner.txt")
	if err := os.WriteFile(inner, []byte("deep"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	awaitEdit(t, edits, func(edit tree.Edit) bool {
		return edit.AbsolutePath() == inner
	})
}

func TestIODeleteTreeClearsModel(t *testing.T) {
	dirs, serial := newTestDirs(t)
	root := t.TempDir()

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	file := filepath.Join(sub, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	addRoot(t, dirs, serial, root)

	done := make(chan error, 1)
	serial.Execute(func() {
		dirs.IO().DeleteTree(sub).Then(func(_ struct{}, err error) { done <- err })
	})
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("delete tree: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("delete never completed")
	}

	onClient(t, serial, func() {
		if dirs.Model().Contains(sub) || dirs.Model().Contains(file) {
			t.Errorf("subtree survived delete")
		}
	})
}

func TestOverflowRescanFailureIsReported(t *testing.T) {
	dirs, serial := newTestDirs(t)
	missing := filepath.Join(t.TempDir(), "gone")

	onClient(t, serial, func() {
		if _, err := dirs.Model().AddTopLevelDirectory(missing); err != nil {
			t.Errorf("add root: %v", err)
		}
	})

	failures, cancel := dirs.Errors().Subscribe()
	t.Cleanup(cancel)

	// an overflow forces a rescan of every root; the root's directory
	// does not exist, so the rescan must fail loudly
	serial.Execute(func() {
		dirs.processBatch(watcher.Batch{Overflow: true})
	})

	select {
	case err := <-failures:
		if err == nil {
			t.Fatal("nil error on the error stream")
		}
	case <-time.After(testTimeout):
		t.Fatal("failed rescan was never reported")
	}
}

func TestAddTopLevelDirectoryRejectsOverlap(t *testing.T) {
	dirs, serial := newTestDirs(t)
	root := t.TempDir()
	addRoot(t, dirs, serial, root)

	done := make(chan error, 1)
	serial.Execute(func() {
		dirs.AddTopLevelDirectory(filepath.Join(root, "sub")).Then(func(_ struct{}, err error) {
			done <- err
		})
	})
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected overlap rejection")
		}
	case <-time.After(testTimeout):
		t.Fatal("promise never completed")
	}
}
