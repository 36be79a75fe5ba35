package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "state.sqlite"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(path string) Record {
	return Record{
		Path:            path,
		OriginalSize:    1000,
		FinalSize:       600,
		BytesSaved:      400,
		PercentSaved:    40,
		Status:          StatusProcessed,
		DominantType:    "JPG",
		Effort:          8,
		DurationSeconds: 1.5,
		ImageCount:      4,
		JPGCount:        3,
		PNGCount:        1,
		ToolVersion:     "cjxl/0.10.2 magick/7.1.1-29 file/5.45",
	}
}

func TestStore_UpsertProcessed_Replaces(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertProcessed(sampleRecord("series/a.cbz")); err != nil {
		t.Fatalf("UpsertProcessed() error = %v", err)
	}

	// Повторная запись по тому же пути замещает, а не добавляет
	r2 := sampleRecord("series/a.cbz")
	r2.BytesSaved = 0
	r2.FinalSize = 1000
	if err := s.UpsertProcessed(r2); err != nil {
		t.Fatalf("second UpsertProcessed() error = %v", err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 {
		t.Errorf("Total = %d, want 1 (upsert must replace)", stats.Total)
	}

	rec, err := s.GetRecord("series/a.cbz")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("record missing")
	}
	if rec.BytesSaved != 0 {
		t.Errorf("BytesSaved = %d, want 0 (latest record must win)", rec.BytesSaved)
	}
	if rec.DominantType != "JPG" {
		t.Errorf("DominantType = %q", rec.DominantType)
	}
}

func TestStore_ProcessedPaths(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertProcessed(sampleRecord("a.cbz")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertFailed("b.cbz", time.Second, "boom"); err != nil {
		t.Fatal(err)
	}
	deleted := sampleRecord("c.cbz")
	deleted.Status = StatusDeleted
	if err := s.UpsertProcessed(deleted); err != nil {
		t.Fatal(err)
	}

	paths, err := s.ProcessedPaths()
	if err != nil {
		t.Fatalf("ProcessedPaths() error = %v", err)
	}

	// В множество пропуска попадают только успешные
	if !paths["a.cbz"] {
		t.Error("a.cbz missing from processed set")
	}
	if paths["b.cbz"] {
		t.Error("failed archive must not be in the skip set")
	}
	if paths["c.cbz"] {
		t.Error("deleted archive must not be in the skip set")
	}
}

func TestStore_FailedLifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertFailed("bad.cbz", 2*time.Second, "corrupt zip"); err != nil {
		t.Fatalf("UpsertFailed() error = %v", err)
	}

	paths, err := s.FailedPaths()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "bad.cbz" {
		t.Fatalf("FailedPaths() = %v, want [bad.cbz]", paths)
	}

	// Запись в основной таблице получила статус failed и текст ошибки
	rec, err := s.GetRecord("bad.cbz")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Status != StatusFailed {
		t.Fatalf("record = %+v, want status failed", rec)
	}
	if rec.ErrorMessage == nil || *rec.ErrorMessage != "corrupt zip" {
		t.Errorf("ErrorMessage = %v, want corrupt zip", rec.ErrorMessage)
	}

	// --reprocess-failed удаляет путь перед повторной попыткой
	if err := s.RemoveFailed("bad.cbz"); err != nil {
		t.Fatal(err)
	}
	paths, _ = s.FailedPaths()
	if len(paths) != 0 {
		t.Errorf("FailedPaths() after remove = %v, want empty", paths)
	}

	// Успешный повтор замещает failed запись
	if err := s.UpsertProcessed(sampleRecord("bad.cbz")); err != nil {
		t.Fatal(err)
	}
	rec, _ = s.GetRecord("bad.cbz")
	if rec.Status != StatusProcessed {
		t.Errorf("Status = %q, want processed after successful retry", rec.Status)
	}
	if rec.ErrorMessage != nil {
		t.Errorf("ErrorMessage = %v, want nil after successful retry", rec.ErrorMessage)
	}
}

func TestStore_SuccessClearsPendingFailure(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertFailed("flaky.cbz", time.Second, "boom"); err != nil {
		t.Fatal(err)
	}

	// Успешная запись без явного RemoveFailed (обычный прогон после исправления)
	if err := s.UpsertProcessed(sampleRecord("flaky.cbz")); err != nil {
		t.Fatal(err)
	}

	paths, err := s.FailedPaths()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 0 {
		t.Errorf("FailedPaths() = %v, want empty after success", paths)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.PendingFailures != 0 {
		t.Errorf("PendingFailures = %d, want 0", stats.PendingFailures)
	}
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertProcessed(sampleRecord("a.cbz")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertFailed("b.cbz", time.Second, "boom"); err != nil {
		t.Fatal(err)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 0 || stats.PendingFailures != 0 {
		t.Errorf("after Reset: Total=%d PendingFailures=%d, want 0/0", stats.Total, stats.PendingFailures)
	}
}

func TestStore_GetStats(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertProcessed(sampleRecord("a.cbz")); err != nil {
		t.Fatal(err)
	}
	deleted := sampleRecord("c.cbz")
	deleted.Status = StatusDeleted
	deleted.BytesSaved = 1000
	if err := s.UpsertProcessed(deleted); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertFailed("b.cbz", time.Second, "boom"); err != nil {
		t.Fatal(err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatal(err)
	}

	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Processed != 1 {
		t.Errorf("Processed = %d, want 1", stats.Processed)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if stats.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", stats.Deleted)
	}
	// Экономия считается без failed записей
	if stats.BytesSaved != 1400 {
		t.Errorf("BytesSaved = %d, want 1400", stats.BytesSaved)
	}
	if stats.PendingFailures != 1 {
		t.Errorf("PendingFailures = %d, want 1", stats.PendingFailures)
	}
}

func TestStore_GetRecord_Missing(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.GetRecord("nope.cbz")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Errorf("GetRecord() = %+v, want nil", rec)
	}
}
