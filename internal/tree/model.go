package tree

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"livedirs/internal/event"
	"livedirs/internal/logging"
	"livedirs/internal/metrics"
	"livedirs/internal/snapshot"
)

var (
	// ErrNotAbsolute rejects relative paths as top-level directories.
	ErrNotAbsolute = errors.New("path is not absolute")
	// ErrRootOverlap rejects a root nested under, or containing, another.
	ErrRootOverlap = errors.New("root overlaps an existing root")
	// ErrInconsistent marks a reported path the model cannot account for.
	// It signals that the watcher and the model have drifted and a full
	// resynchronization is needed.
	ErrInconsistent = errors.New("model inconsistency")
)

type Options struct {
	Logger   *logging.Logger
	Registry *metrics.Registry
}

// Model is the canonical in-memory mirror of all watched subtrees. It
// performs no I/O; every mutator is synchronous and must be invoked from
// the single client execution context only.
type Model struct {
	logger   *logging.Logger
	registry *metrics.Registry

	roots []*Entry

	creations     *event.Bus[Edit]
	deletions     *event.Bus[Edit]
	modifications *event.Bus[Edit]
	updates       *event.Bus[Edit]
	errors        *event.Bus[error]
}

func NewModel(ctx context.Context, options Options) *Model {
	if ctx == nil {
		ctx = context.Background()
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	busOptions := func(name string) event.BusOptions {
		return event.BusOptions{Name: name, Registry: registry}
	}
	return &Model{
		logger:        options.Logger,
		registry:      registry,
		creations:     event.NewBus[Edit](ctx, busOptions("creations")),
		deletions:     event.NewBus[Edit](ctx, busOptions("deletions")),
		modifications: event.NewBus[Edit](ctx, busOptions("modifications")),
		updates:       event.NewBus[Edit](ctx, busOptions("updates")),
		errors:        event.NewBus[error](ctx, busOptions("errors")),
	}
}

func (model *Model) Creations() *event.Bus[Edit]     { return model.creations }
func (model *Model) Deletions() *event.Bus[Edit]     { return model.deletions }
func (model *Model) Modifications() *event.Bus[Edit] { return model.modifications }

// Updates merges the three edit streams in emission order.
func (model *Model) Updates() *event.Bus[Edit] { return model.updates }

func (model *Model) Errors() *event.Bus[error] { return model.errors }

func (model *Model) Close() {
	model.creations.Close()
	model.deletions.Close()
	model.modifications.Close()
	model.updates.Close()
	model.errors.Close()
}

// Roots returns the registered top-level directories.
func (model *Model) Roots() []*Entry {
	if len(model.roots) == 0 {
		return nil
	}
	out := make([]*Entry, len(model.roots))
	copy(out, model.roots)
	return out
}

// AddTopLevelDirectory registers an empty root for path. The caller is
// responsible for populating it via Sync.
func (model *Model) AddTopLevelDirectory(path string) (*Entry, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotAbsolute, path)
	}
	cleaned := filepath.Clean(path)
	for _, root := range model.roots {
		if isUnder(root.path, cleaned) || isUnder(cleaned, root.path) {
			return nil, fmt.Errorf("%w: %s and %s", ErrRootOverlap, root.path, cleaned)
		}
	}
	root := newRootEntry(cleaned)
	model.roots = append(model.roots, root)
	return root, nil
}

// Contains reports whether path is actually present in the mirror, not
// merely within a watched root's namespace.
func (model *Model) Contains(path string) bool {
	cleaned := filepath.Clean(path)
	for _, root := range model.rootsContaining(cleaned) {
		rel, ok := relativeComponents(root.path, cleaned)
		if ok && root.resolve(rel) != nil {
			return true
		}
	}
	return false
}

// ContainsPrefixOf reports whether path falls under any registered root.
func (model *Model) ContainsPrefixOf(path string) bool {
	return len(model.rootsContaining(filepath.Clean(path))) > 0
}

// AddFile records a file at path, a degenerate single-node Sync. An
// existing file entry only observes the timestamp.
func (model *Model) AddFile(path string, origin any, modified time.Time) {
	node := snapshot.File(path, modified)
	model.eachRootFor(node.Path, origin, func(root *Entry) {
		model.syncTree(root, node, origin)
	})
}

// AddDirectory records a directory at path. An existing directory entry at
// path is left untouched, children included.
func (model *Model) AddDirectory(path string, origin any) {
	node := snapshot.Directory(path, nil)
	model.eachRootFor(node.Path, origin, func(root *Entry) {
		rel, ok := relativeComponents(root.path, node.Path)
		if ok {
			if existing := root.resolve(rel); existing != nil && existing.dir {
				return
			}
		}
		model.syncTree(root, node, origin)
	})
}

// UpdateModificationTime advances a file's timestamp, emitting a
// modification edit only on a strict increase.
func (model *Model) UpdateModificationTime(path string, modified time.Time, origin any) {
	model.AddFile(path, origin, modified)
}

// Delete removes the entry at path and every descendant, reporting
// deletions leaf-first within each branch.
func (model *Model) Delete(path string, origin any) {
	cleaned := filepath.Clean(path)
	model.eachRootFor(cleaned, origin, func(root *Entry) {
		rel, ok := relativeComponents(root.path, cleaned)
		if !ok {
			return
		}
		if entry := root.resolve(rel); entry != nil {
			model.removeEntry(root, entry, origin)
		}
	})
}

// Sync reconciles the mirror under the snapshot's path with the snapshot,
// emitting the minimal set of edits tagged with origin.
func (model *Model) Sync(node *snapshot.Node, origin any) {
	model.eachRootFor(node.Path, origin, func(root *Entry) {
		model.syncTree(root, node, origin)
	})
}

func (model *Model) eachRootFor(path string, origin any, apply func(*Entry)) {
	roots := model.rootsContaining(path)
	if len(roots) == 0 {
		model.reportError(fmt.Errorf("%w: no top-level ancestor for %s", ErrInconsistent, path))
		return
	}
	for _, root := range roots {
		apply(root)
	}
}

func (model *Model) rootsContaining(path string) []*Entry {
	var matched []*Entry
	for _, root := range model.roots {
		if isUnder(root.path, path) {
			matched = append(matched, root)
		}
	}
	return matched
}

func (model *Model) removeRoot(root *Entry) {
	for i, candidate := range model.roots {
		if candidate == root {
			model.roots = append(model.roots[:i], model.roots[i+1:]...)
			return
		}
	}
}

func (model *Model) reportCreation(root, entry *Entry, origin any) {
	edit := newEdit(EditCreation, root.path, entry.path, origin)
	model.registry.IncEditCreated()
	model.creations.Publish(edit)
	model.updates.Publish(edit)
}

func (model *Model) reportDeletion(root, entry *Entry, origin any) {
	edit := newEdit(EditDeletion, root.path, entry.path, origin)
	model.registry.IncEditDeleted()
	model.deletions.Publish(edit)
	model.updates.Publish(edit)
}

func (model *Model) reportModification(root, entry *Entry, origin any) {
	edit := newEdit(EditModification, root.path, entry.path, origin)
	model.registry.IncEditModified()
	model.modifications.Publish(edit)
	model.updates.Publish(edit)
}

func (model *Model) reportError(err error) {
	if model.logger != nil {
		model.logger.Warn("model inconsistency", map[string]string{
			"error": err.Error(),
		})
	}
	model.errors.Publish(err)
}

// isUnder reports whether path equals base or lies underneath it.
func isUnder(base, path string) bool {
	if base == path {
		return true
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// relativeComponents splits path relative to base into components. An
// empty slice means path equals base.
func relativeComponents(base, path string) ([]string, bool) {
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}
	if rel == "." {
		return nil, true
	}
	return strings.Split(rel, string(filepath.Separator)), true
}
