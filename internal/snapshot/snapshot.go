// Package snapshot builds point-in-time descriptions of directory
// subtrees. A snapshot is the ground truth the tree model is reconciled
// against after an uncertain filesystem notification.
package snapshot

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Node describes one path as observed at scan time. A directory node
// carries its children ordered directories-first, then case-insensitively
// by name; a file node carries its last-modified timestamp.
type Node struct {
	Path     string
	Dir      bool
	Modified time.Time
	Children []*Node
}

// File builds a single-node snapshot of a file.
func File(path string, modified time.Time) *Node {
	return &Node{Path: filepath.Clean(path), Modified: modified}
}

// Directory builds a snapshot of a directory with pre-ordered children.
func Directory(path string, children []*Node) *Node {
	return &Node{Path: filepath.Clean(path), Dir: true, Children: children}
}

// Name returns the last path component.
func (node *Node) Name() string {
	return filepath.Base(node.Path)
}

// Count returns the number of nodes in the subtree, including the root.
func (node *Node) Count() int {
	if node == nil {
		return 0
	}
	total := 1
	for _, child := range node.Children {
		total += child.Count()
	}
	return total
}

// Scan recursively reads path from the filesystem. Any stat or list
// failure propagates; concurrent mutation during the scan is an accepted
// race the caller resolves by rescanning on the next notification.
func Scan(path string) (*Node, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return scan(filepath.Clean(path), info.IsDir(), info.ModTime())
}

func scan(path string, dir bool, modified time.Time) (*Node, error) {
	if !dir {
		return File(path, modified), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	children := make([]*Node, 0, len(entries))
	for _, entry := range entries {
		childPath := filepath.Join(path, entry.Name())
		info, err := os.Stat(childPath)
		if err != nil {
			return nil, err
		}
		child, err := scan(childPath, info.IsDir(), info.ModTime())
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	SortChildren(children)
	return Directory(path, children), nil
}

// SortChildren orders nodes with the shared sibling rule. The sort is
// stable so names that compare equal case-insensitively keep their
// first-observed order.
func SortChildren(children []*Node) {
	sort.SliceStable(children, func(i, j int) bool {
		return Ordered(children[i].Dir, children[i].Name(), children[j].Dir, children[j].Name())
	})
}

// Ordered reports whether a sibling (aDir, aName) sorts strictly before
// (bDir, bName): directories before files, then case-insensitive name
// order.
func Ordered(aDir bool, aName string, bDir bool, bName string) bool {
	if aDir != bDir {
		return aDir
	}
	return strings.ToLower(aName) < strings.ToLower(bName)
}
