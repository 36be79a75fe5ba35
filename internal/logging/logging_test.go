package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_MirrorsToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "sub", "conversion.log")

	l, err := New(logFile, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var lines []string
	l.SetConsoleSink(func(line string) { lines = append(lines, line) })

	l.Printf("обработан %s", "a.cbz")
	l.Warnf("медленно")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	if len(lines) != 2 {
		t.Fatalf("консольных строк = %d, want 2", len(lines))
	}
	if lines[0] != "обработан a.cbz" {
		t.Errorf("строка = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "⚠️") {
		t.Errorf("предупреждение без маркера: %q", lines[1])
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("файл лога не создан: %v", err)
	}
	if !strings.Contains(string(data), "обработан a.cbz") {
		t.Errorf("файл лога = %q, нет строки", string(data))
	}
}

func TestLogger_DryRun(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "conversion.log")

	l, err := New(logFile, true)
	if err != nil {
		t.Fatal(err)
	}

	var lines []string
	l.SetConsoleSink(func(line string) { lines = append(lines, line) })

	l.Printf("будет обработан %s", "a.cbz")

	if len(lines) != 1 || !strings.HasPrefix(lines[0], "[dry-run] ") {
		t.Errorf("строки = %v, want префикс [dry-run]", lines)
	}

	// Симуляция не создаёт файл лога
	if _, err := os.Stat(logFile); !os.IsNotExist(err) {
		t.Error("dry-run не должен создавать файл лога")
	}
	if l.FilePath() != "" {
		t.Errorf("FilePath() = %q, want пусто", l.FilePath())
	}
}
