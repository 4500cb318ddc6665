// Package tree maintains the in-memory mirror of watched directory
// subtrees and emits creation, deletion and modification edits as the
// mirror is reconciled against the filesystem.
package tree

import (
	"path/filepath"
	"time"

	"livedirs/internal/snapshot"
)

// Entry is one node of the mirror: a file or a directory, with roots as a
// flag rather than a separate type. The path is fixed for the entry's
// lifetime; a path change is modeled as removal plus creation.
type Entry struct {
	path     string
	dir      bool
	root     bool
	modified time.Time
	parent   *Entry
	children []*Entry
}

func newRootEntry(path string) *Entry {
	return &Entry{path: filepath.Clean(path), dir: true, root: true}
}

func (entry *Entry) Path() string {
	return entry.path
}

func (entry *Entry) Name() string {
	return filepath.Base(entry.path)
}

func (entry *Entry) IsDirectory() bool {
	return entry.dir
}

func (entry *Entry) IsRoot() bool {
	return entry.root
}

// LastModified is meaningful for file entries only.
func (entry *Entry) LastModified() time.Time {
	return entry.modified
}

func (entry *Entry) Parent() *Entry {
	return entry.parent
}

// Children returns the ordered children: directories first, then files,
// each group case-insensitively sorted by name.
func (entry *Entry) Children() []*Entry {
	if len(entry.children) == 0 {
		return nil
	}
	out := make([]*Entry, len(entry.children))
	copy(out, entry.children)
	return out
}

// child returns the direct child with the given name, or nil.
func (entry *Entry) child(name string) *Entry {
	for _, candidate := range entry.children {
		if candidate.Name() == name {
			return candidate
		}
	}
	return nil
}

// resolve walks the given path components down from this entry.
func (entry *Entry) resolve(components []string) *Entry {
	current := entry
	for _, component := range components {
		if current == nil || !current.dir {
			return nil
		}
		current = current.child(component)
	}
	return current
}

// insertFile adds a file child at its ordered position.
func (entry *Entry) insertFile(name string, modified time.Time) *Entry {
	child := &Entry{
		path:     filepath.Join(entry.path, name),
		modified: modified,
		parent:   entry,
	}
	entry.insert(child)
	return child
}

// insertDirectory adds a directory child at its ordered position.
func (entry *Entry) insertDirectory(name string) *Entry {
	child := &Entry{
		path:   filepath.Join(entry.path, name),
		dir:    true,
		parent: entry,
	}
	entry.insert(child)
	return child
}

// insert places child before the first sibling it sorts strictly ahead
// of, so equal-folding names keep first-writer order.
func (entry *Entry) insert(child *Entry) {
	index := len(entry.children)
	for i, sibling := range entry.children {
		if snapshot.Ordered(child.dir, child.Name(), sibling.dir, sibling.Name()) {
			index = i
			break
		}
	}
	entry.children = append(entry.children, nil)
	copy(entry.children[index+1:], entry.children[index:])
	entry.children[index] = child
}

func (entry *Entry) unlinkChild(child *Entry) {
	for i, candidate := range entry.children {
		if candidate == child {
			entry.children = append(entry.children[:i], entry.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// observeModification advances the stored timestamp if the incoming one is
// strictly greater. A non-increasing timestamp is a no-op.
func (entry *Entry) observeModification(modified time.Time) bool {
	if entry.dir || !modified.After(entry.modified) {
		return false
	}
	entry.modified = modified
	return true
}
