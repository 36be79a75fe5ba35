package archive

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// makeZip создаёт zip архив с заданными членами.
func makeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

// listZip возвращает отсортированные имена членов архива.
func listZip(t *testing.T, path string) []string {
	t.Helper()

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "test.cbz")
	makeZip(t, src, map[string]string{
		"page001.jpg":        "jpeg data",
		"bonus/page002.png":  "png data",
		"bonus/deep/art.gif": "gif data",
	})

	work := t.TempDir()
	if err := Extract(src, work); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	for _, rel := range []string{"page001.jpg", "bonus/page002.png", "bonus/deep/art.gif"} {
		if _, err := os.Stat(filepath.Join(work, filepath.FromSlash(rel))); err != nil {
			t.Errorf("member %s missing after extract: %v", rel, err)
		}
	}
}

func TestExtract_ZipSlip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.cbz")
	makeZip(t, src, map[string]string{
		"../escape.txt": "bad",
	})

	if err := Extract(src, t.TempDir()); err == nil {
		t.Error("Extract() should reject member paths escaping the working tree")
	}
}

func TestExtract_Corrupt(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.cbz")
	if err := os.WriteFile(src, []byte("not a zip at all"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Extract(src, t.TempDir()); err == nil {
		t.Error("Extract() should fail on a corrupt archive")
	}
}

func TestRepack_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "book.cbz")
	makeZip(t, orig, map[string]string{"old.jpg": "old"})

	// Рабочая директория с финальным содержимым
	work := t.TempDir()
	files := map[string]string{
		"page001.jxl": "jxl one",
		"page002.jxl": "jxl two",
		"info.txt":    "metadata",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(work, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := Repack(work, orig); err != nil {
		t.Fatalf("Repack() error = %v", err)
	}

	// Мультимножество имён в архиве совпадает с рабочей директорией
	got := listZip(t, orig)
	want := []string{"info.txt", "page001.jxl", "page002.jxl"}
	if len(got) != len(want) {
		t.Fatalf("members = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("members[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Старое содержимое заменено
	r, err := zip.OpenReader(orig)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	for _, f := range r.File {
		if f.Name == "old.jpg" {
			t.Error("old member survived repack")
		}
		if f.Method != zip.Deflate {
			t.Errorf("member %s method = %d, want deflate", f.Name, f.Method)
		}
	}
}

func TestRepack_NoTempLeftover(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "book.cbz")
	makeZip(t, orig, map[string]string{"a.jpg": "a"})

	work := t.TempDir()
	if err := os.WriteFile(filepath.Join(work, "a.jxl"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Repack(work, orig); err != nil {
		t.Fatalf("Repack() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "book.cbz" {
		t.Errorf("unexpected files next to the archive: %v", entries)
	}
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "book.cbz")
	if err := os.WriteFile(orig, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	bak, err := Backup(orig)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	data, err := os.ReadFile(bak)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("backup content = %q", data)
	}

	// Повторный вызов не перезаписывает существующую копию
	if err := os.WriteFile(orig, []byte("changed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Backup(orig); err != nil {
		t.Fatalf("second Backup() error = %v", err)
	}
	data, _ = os.ReadFile(bak)
	if string(data) != "original" {
		t.Error("existing backup was overwritten")
	}
}
