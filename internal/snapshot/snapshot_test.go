package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestScanOrdersDirectoriesFirstCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	mustMkdir(t, filepath.Join(root, "zeta"))
	mustMkdir(t, filepath.Join(root, "Alpha"))
	mustWrite(t, filepath.Join(root, "beta.txt"))
	mustWrite(t, filepath.Join(root, "AAA.txt"))

	node, err := Scan(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !node.Dir {
		t.Fatal("expected directory node")
	}

	names := make([]string, 0, len(node.Children))
	for _, child := range node.Children {
		names = append(names, child.Name())
	}
	expected := []string{"Alpha", "zeta", "AAA.txt", "beta.txt"}
	if len(names) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, names)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, names)
		}
	}
}

func TestScanFileLeafCarriesTimestamp(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	mustWrite(t, path)

	node, err := Scan(path)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if node.Dir {
		t.Fatal("expected file node")
	}
	if node.Modified.IsZero() {
		t.Fatal("expected non-zero timestamp")
	}
	if len(node.Children) != 0 {
		t.Fatal("file node must have no children")
	}
}

func TestScanMissingPathFails(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "absent")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestScanRecursesIntoSubdirectories(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	mustMkdir(t, sub)
	mustWrite(t, filepath.Join(sub, "nested.txt"))

	node, err := Scan(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if node.Count() != 3 {
		t.Fatalf("expected 3 nodes, got %d", node.Count())
	}
	if node.Children[0].Children[0].Name() != "nested.txt" {
		t.Fatalf("nested child missing: %+v", node.Children[0])
	}
}

func TestSingleNodeConstructors(t *testing.T) {
	modified := time.Now()
	file := File("/a/b.txt", modified)
	if file.Dir || !file.Modified.Equal(modified) {
		t.Fatalf("unexpected file node: %+v", file)
	}
	dir := Directory("/a/c", nil)
	if !dir.Dir || len(dir.Children) != 0 {
		t.Fatalf("unexpected directory node: %+v", dir)
	}
}

func TestOrdered(t *testing.T) {
	if !Ordered(true, "zzz", false, "aaa") {
		t.Fatal("directories must sort before files")
	}
	if Ordered(false, "b", false, "A") {
		t.Fatal("case-insensitive name order violated")
	}
	if Ordered(false, "a", false, "A") || Ordered(false, "A", false, "a") {
		t.Fatal("case-fold ties must not be strictly ordered")
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
