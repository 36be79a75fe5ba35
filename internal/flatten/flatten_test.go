package flatten

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/artemshloyda/cbzxl/internal/logging"
)

func newTestFlattener(t *testing.T) *Flattener {
	t.Helper()
	log, err := logging.New("", false)
	if err != nil {
		t.Fatal(err)
	}
	log.SetConsoleSink(func(string) {})
	return New(log, false)
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func listRoot(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestHasSubdirectories(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.jxl"), "a")

	has, err := HasSubdirectories(root)
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("flat tree reported as nested")
	}

	write(t, filepath.Join(root, "sub", "b.jxl"), "b")
	has, err = HasSubdirectories(root)
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("nested tree reported as flat")
	}
}

func TestFlatten_MovesNestedFiles(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "cover.jxl"), "cover")
	write(t, filepath.Join(root, "vol1", "p001.jxl"), "p1")
	write(t, filepath.Join(root, "vol1", "ch2", "p002.jxl"), "p2")

	f := newTestFlattener(t)
	moved, err := f.Flatten(root)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	if !moved {
		t.Error("moved = false, want true")
	}

	got := listRoot(t, root)
	want := []string{"cover.jxl", "p001.jxl", "p002.jxl"}
	if len(got) != len(want) {
		t.Fatalf("root entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFlatten_ResolvesCollisions(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "p001.jxl"), "root copy")
	write(t, filepath.Join(root, "a", "p001.jxl"), "copy a")
	write(t, filepath.Join(root, "b", "p001.jxl"), "copy b")

	f := newTestFlattener(t)
	moved, err := f.Flatten(root)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	if !moved {
		t.Error("moved = false, want true")
	}

	got := listRoot(t, root)
	want := []string{"p001.jxl", "p001_1.jxl", "p001_2.jxl"}
	if len(got) != len(want) {
		t.Fatalf("root entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Содержимое не потеряно и не перезаписано
	contents := map[string]bool{}
	for _, name := range got {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			t.Fatal(err)
		}
		contents[string(data)] = true
	}
	for _, want := range []string{"root copy", "copy a", "copy b"} {
		if !contents[want] {
			t.Errorf("content %q lost during flatten", want)
		}
	}
}

func TestFlatten_PrunesMetadataOnlyDirs(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "vol1", "p001.jxl"), "p1")
	write(t, filepath.Join(root, "vol1", ".DS_Store"), "ds")
	write(t, filepath.Join(root, "vol1", "Thumbs.db"), "th")
	write(t, filepath.Join(root, "vol1", "._p001.jxl"), "apple double")

	f := newTestFlattener(t)
	if _, err := f.Flatten(root); err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}

	// Директория с одними служебными файлами удалена целиком
	if _, err := os.Stat(filepath.Join(root, "vol1")); !os.IsNotExist(err) {
		t.Error("metadata-only directory should be pruned")
	}

	got := listRoot(t, root)
	if len(got) != 1 || got[0] != "p001.jxl" {
		t.Errorf("root entries = %v, want [p001.jxl]", got)
	}
}

func TestFlatten_FlatTreeNoop(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "p001.jxl"), "p1")
	write(t, filepath.Join(root, "p002.jxl"), "p2")

	f := newTestFlattener(t)
	moved, err := f.Flatten(root)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	if moved {
		t.Error("moved = true for an already-flat tree")
	}
}
