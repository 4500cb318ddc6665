package tree

import (
	"fmt"

	"livedirs/internal/snapshot"
)

// syncTree makes the mirror at the snapshot's path identical to the
// snapshot, within the given root's scope.
func (model *Model) syncTree(root *Entry, node *snapshot.Node, origin any) {
	rel, ok := relativeComponents(root.path, node.Path)
	if !ok {
		model.reportError(fmt.Errorf("%w: %s is outside root %s", ErrInconsistent, node.Path, root.path))
		return
	}

	parent, child := resolveInParent(root, rel)
	switch {
	case parent != nil:
		model.syncChild(root, parent, rel[len(rel)-1], node, origin)
	case child == nil:
		// neither the path nor its parent is present in the mirror
		model.reportError(fmt.Errorf("%w: parent directory for %s does not exist within %s",
			ErrInconsistent, node.Path, root.path))
	default:
		// resolved to the root itself
		if node.Dir {
			model.syncContent(root, root, node, origin)
		} else {
			model.reportError(fmt.Errorf("%w: cannot replace top-level directory %s with a file",
				ErrInconsistent, root.path))
		}
	}
}

// resolveInParent locates the entry for the relative path and its parent
// directory. Exactly one of three shapes comes back: (parent, child or
// nil) when the parent exists, (nil, root) when the path is the root
// itself, or (nil, nil) when not even the parent is modeled.
func resolveInParent(root *Entry, rel []string) (*Entry, *Entry) {
	switch len(rel) {
	case 0:
		return nil, root
	case 1:
		return root, root.child(rel[0])
	default:
		parent := root.resolve(rel[:len(rel)-1])
		if parent == nil || !parent.dir {
			return nil, nil
		}
		return parent, parent.child(rel[len(rel)-1])
	}
}

// syncContent reconciles a directory entry's children with the snapshot's:
// live children absent from the snapshot are removed recursively, then
// every snapshot child is synced in order.
func (model *Model) syncContent(root, dir *Entry, node *snapshot.Node, origin any) {
	desired := make(map[string]struct{}, len(node.Children))
	for _, child := range node.Children {
		desired[child.Name()] = struct{}{}
	}

	for _, child := range dir.Children() {
		if _, ok := desired[child.Name()]; !ok {
			model.removeEntry(root, child, origin)
		}
	}

	for _, child := range node.Children {
		model.syncTree(root, child, origin)
	}
}

// syncChild reconciles a single named child of parent against the
// snapshot node. A kind change (file vs directory) removes the old entry
// and recreates it; an in-place conversion is deliberately not attempted.
func (model *Model) syncChild(root, parent *Entry, name string, node *snapshot.Node, origin any) {
	child := parent.child(name)
	if child != nil && child.dir != node.Dir {
		model.removeEntry(root, child, origin)
		child = nil
	}

	if child == nil {
		if node.Dir {
			created := parent.insertDirectory(name)
			model.reportCreation(root, created, origin)
			model.syncContent(root, created, node, origin)
		} else {
			created := parent.insertFile(name, node.Modified)
			model.reportCreation(root, created, origin)
		}
		return
	}

	if child.dir {
		model.syncContent(root, child, node, origin)
	} else if child.observeModification(node.Modified) {
		model.reportModification(root, child, origin)
	}
}

// removeEntry reports deletion of the whole subtree leaf-first, then
// unlinks it, so no edit ever follows for an already-detached descendant.
func (model *Model) removeEntry(root, entry *Entry, origin any) {
	model.signalDeletions(root, entry, origin)
	if entry.root {
		model.removeRoot(entry)
	} else if entry.parent != nil {
		entry.parent.unlinkChild(entry)
	}
}

func (model *Model) signalDeletions(root, entry *Entry, origin any) {
	for _, child := range entry.children {
		model.signalDeletions(root, child, origin)
	}
	model.reportDeletion(root, entry, origin)
}
