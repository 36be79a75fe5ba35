package classify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/artemshloyda/cbzxl/internal/logging"
)

func TestBucketForMIME(t *testing.T) {
	tests := []struct {
		mime string
		want Bucket
	}{
		{"image/jpeg", BucketConvertibleJPEG},
		{"image/png", BucketConvertiblePNG},
		{"image/jxl", BucketAlreadyTarget},
		{"image/webp", BucketOtherImage},
		{"image/avif", BucketOtherImage},
		{"image/gif", BucketOtherImage},
		{"image/tiff", BucketOtherImage},
		{"image/bmp", BucketOtherImage},
		{"text/plain", BucketUnrecognized},
		{"application/octet-stream", BucketUnrecognized},
		{"", BucketUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := BucketForMIME(tt.mime); got != tt.want {
				t.Errorf("BucketForMIME(%q) = %v, want %v", tt.mime, got, tt.want)
			}
		})
	}
}

func TestSummary_DominantType(t *testing.T) {
	tests := []struct {
		name string
		jpeg int
		png  int
		want string
	}{
		{"jpeg majority", 3, 1, "JPG"},
		{"png majority", 1, 4, "PNG"},
		{"equal nonzero", 2, 2, "Mixed"},
		{"none", 0, 0, "N/A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Summary{JPEGCount: tt.jpeg, PNGCount: tt.png}
			if got := s.DominantType(); got != tt.want {
				t.Errorf("DominantType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummary_PreEncodeOutcome(t *testing.T) {
	tests := []struct {
		name        string
		summary     Summary
		convert     bool
		wantOutcome Outcome
		wantDone    bool
	}{
		{
			name:        "convertible members present",
			summary:     Summary{JPEGCount: 3, PNGCount: 1},
			convert:     true,
			wantOutcome: OutcomeSavedSpace,
			wantDone:    false,
		},
		{
			name:        "only target codec",
			summary:     Summary{TargetCount: 5},
			convert:     true,
			wantOutcome: OutcomeAlreadyTarget,
			wantDone:    true,
		},
		{
			name:        "other formats only",
			summary:     Summary{OtherCount: 2, UnrecognizedCount: 1},
			convert:     true,
			wantOutcome: OutcomeOtherFormatsOnly,
			wantDone:    true,
		},
		{
			name:        "nothing recognized",
			summary:     Summary{UnrecognizedCount: 3},
			convert:     true,
			wantOutcome: OutcomeNoImagesRecognized,
			wantDone:    true,
		},
		{
			name:        "empty tree",
			summary:     Summary{},
			convert:     true,
			wantOutcome: OutcomeNoImagesRecognized,
			wantDone:    true,
		},
		{
			name:        "conversion disabled",
			summary:     Summary{JPEGCount: 2},
			convert:     false,
			wantOutcome: OutcomeNoEligibleFormat,
			wantDone:    true,
		},
		{
			name:        "target members do not mask convertibles",
			summary:     Summary{JPEGCount: 1, TargetCount: 9},
			convert:     true,
			wantOutcome: OutcomeSavedSpace,
			wantDone:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, done := tt.summary.PreEncodeOutcome(tt.convert)
			if done != tt.wantDone {
				t.Errorf("done = %v, want %v", done, tt.wantDone)
			}
			if done && outcome != tt.wantOutcome {
				t.Errorf("outcome = %v, want %v", outcome, tt.wantOutcome)
			}
		})
	}
}

func TestFinalOutcome(t *testing.T) {
	if got := FinalOutcome(1024); got != OutcomeSavedSpace {
		t.Errorf("FinalOutcome(1024) = %v", got)
	}
	if got := FinalOutcome(0); got != OutcomeNoSpaceSaved {
		t.Errorf("FinalOutcome(0) = %v", got)
	}
	if got := FinalOutcome(-100); got != OutcomeNoSpaceSaved {
		t.Errorf("FinalOutcome(-100) = %v", got)
	}
}

func TestSummary_MajorityOtherExt(t *testing.T) {
	s := &Summary{OtherExtCounts: map[string]int{"webp": 3, "gif": 1}}
	if got := s.MajorityOtherExt(); got != "webp" {
		t.Errorf("MajorityOtherExt() = %q, want %q", got, "webp")
	}
}

// fakeSniffer возвращает MIME тип по заранее заданной карте имя → тип.
func fakeSniffer(types map[string]string) SniffFunc {
	return func(ctx context.Context, path string) (string, error) {
		mime, ok := types[filepath.Base(path)]
		if !ok {
			return "", fmt.Errorf("sniff failed for %s", path)
		}
		return mime, nil
	}
}

func newTestClassifier(t *testing.T, sniff SniffFunc) *Classifier {
	t.Helper()
	log, err := logging.New("", false)
	if err != nil {
		t.Fatal(err)
	}
	log.SetConsoleSink(func(string) {})
	return New(sniff, os.Rename, log, false)
}

func TestClassifier_ClassifyTree(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"p1.jpg":   "image/jpeg",
		"p2.jpg":   "image/jpeg",
		"p3.jpg":   "image/jpeg",
		"p4.png":   "image/png",
		"note.txt": "text/plain",
	}
	for name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	c := newTestClassifier(t, fakeSniffer(files))
	members, summary, err := c.ClassifyTree(context.Background(), dir)
	if err != nil {
		t.Fatalf("ClassifyTree() error = %v", err)
	}

	if len(members) != 5 {
		t.Fatalf("len(members) = %d, want 5", len(members))
	}
	if summary.JPEGCount != 3 || summary.PNGCount != 1 {
		t.Errorf("counts: jpeg=%d png=%d, want 3/1", summary.JPEGCount, summary.PNGCount)
	}
	if summary.UnrecognizedCount != 1 {
		t.Errorf("UnrecognizedCount = %d, want 1", summary.UnrecognizedCount)
	}
	if summary.DominantType() != "JPG" {
		t.Errorf("DominantType() = %q, want JPG", summary.DominantType())
	}
	if summary.ImageCount() != 4 {
		t.Errorf("ImageCount() = %d, want 4", summary.ImageCount())
	}
}

func TestClassifier_CorrectsExtension(t *testing.T) {
	dir := t.TempDir()
	// PNG с неверным расширением .jpg
	misnamed := filepath.Join(dir, "page.jpg")
	if err := os.WriteFile(misnamed, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	c := newTestClassifier(t, func(ctx context.Context, path string) (string, error) {
		return "image/png", nil
	})

	members, summary, err := c.ClassifyTree(context.Background(), dir)
	if err != nil {
		t.Fatalf("ClassifyTree() error = %v", err)
	}

	want := filepath.Join(dir, "page.png")
	if members[0].Path != want {
		t.Errorf("member path = %q, want %q", members[0].Path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("renamed file missing: %v", err)
	}
	if _, err := os.Stat(misnamed); !os.IsNotExist(err) {
		t.Error("original misnamed file still present")
	}
	if summary.PNGCount != 1 {
		t.Errorf("PNGCount = %d, want 1", summary.PNGCount)
	}
}

func TestClassifier_KeepsJpegAlias(t *testing.T) {
	dir := t.TempDir()
	// .jpeg - допустимый псевдоним для image/jpeg, не переименовывается
	path := filepath.Join(dir, "page.jpeg")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	c := newTestClassifier(t, func(ctx context.Context, path string) (string, error) {
		return "image/jpeg", nil
	})

	members, _, err := c.ClassifyTree(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if members[0].Path != path {
		t.Errorf("member path = %q, want unchanged %q", members[0].Path, path)
	}
}

func TestClassifier_SniffFailureIsUnrecognized(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "weird.bin"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	c := newTestClassifier(t, fakeSniffer(nil))
	members, summary, err := c.ClassifyTree(context.Background(), dir)
	if err != nil {
		t.Fatalf("classification must not fail on sniff errors: %v", err)
	}
	if members[0].Bucket != BucketUnrecognized {
		t.Errorf("bucket = %v, want BucketUnrecognized", members[0].Bucket)
	}
	if summary.UnrecognizedCount != 1 {
		t.Errorf("UnrecognizedCount = %d, want 1", summary.UnrecognizedCount)
	}
}
