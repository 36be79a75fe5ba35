// Package classify определяет истинный тип содержимого файлов и
// принимает архивное решение о конвертации.
package classify

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artemshloyda/cbzxl/internal/logging"
)

// RenameFunc переименовывает файл (подменяется no-op'ом в dry-run).
type RenameFunc func(oldPath, newPath string) error

// Classifier классифицирует содержимое рабочей директории одного архива.
type Classifier struct {
	// sniff определяет MIME тип файла.
	sniff SniffFunc

	// rename исправляет расширение файла на диске.
	rename RenameFunc

	// log - логгер.
	log *logging.Logger

	// verbose - логировать каждое исправление расширения.
	verbose bool
}

// New создаёт новый Classifier.
func New(sniff SniffFunc, rename RenameFunc, log *logging.Logger, verbose bool) *Classifier {
	return &Classifier{
		sniff:   sniff,
		rename:  rename,
		log:     log,
		verbose: verbose,
	}
}

// ClassifyTree обходит рабочую директорию, определяет тип каждого файла
// и исправляет расширения, не совпадающие с содержимым.
// Классификация не падает: файл с ошибкой sniff попадает в BucketUnrecognized.
func (c *Classifier) ClassifyTree(ctx context.Context, dir string) ([]Member, *Summary, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("не удалось обойти рабочую директорию: %w", err)
	}

	// Детерминированный порядок классификации
	sort.Strings(paths)

	summary := &Summary{OtherExtCounts: make(map[string]int)}
	members := make([]Member, 0, len(paths))

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		member := c.classifyOne(ctx, path)
		members = append(members, member)

		switch member.Bucket {
		case BucketConvertibleJPEG:
			summary.JPEGCount++
		case BucketConvertiblePNG:
			summary.PNGCount++
		case BucketAlreadyTarget:
			summary.TargetCount++
		case BucketOtherImage:
			summary.OtherCount++
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(member.Path), "."))
			summary.OtherExtCounts[ext]++
		default:
			summary.UnrecognizedCount++
		}
	}

	return members, summary, nil
}

// classifyOne определяет тип одного файла и исправляет его расширение.
func (c *Classifier) classifyOne(ctx context.Context, path string) Member {
	mime, err := c.sniff(ctx, path)
	if err != nil {
		c.log.Warnf("Не удалось определить тип %s: %v", filepath.Base(path), err)
		return Member{Path: path, Bucket: BucketUnrecognized}
	}

	member := Member{
		Path:   path,
		MIME:   mime,
		Bucket: BucketForMIME(mime),
	}

	// Исправляем расширение, если оно не совпадает с содержимым
	if fixed, ok := c.correctExtension(path, mime); ok {
		member.Path = fixed
	}

	return member
}

// correctExtension переименовывает файл к каноническому расширению его MIME типа.
// Возвращает новый путь и true, если переименование выполнено.
func (c *Classifier) correctExtension(path, mime string) (string, bool) {
	want := CanonicalExt(mime)
	if want == "" {
		return path, false
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == want || (want == ".jpg" && ext == ".jpeg") || (want == ".tiff" && ext == ".tif") {
		return path, false
	}

	newPath := strings.TrimSuffix(path, filepath.Ext(path)) + want
	if err := c.rename(path, newPath); err != nil {
		c.log.Warnf("Не удалось исправить расширение %s: %v", filepath.Base(path), err)
		return path, false
	}

	if c.verbose {
		c.log.Printf("🔧 Исправлено расширение: %s → %s", filepath.Base(path), filepath.Base(newPath))
	}

	return newPath, true
}

/*
Возможные расширения:
- Параллельная классификация больших архивов
- Обработка коллизии имён при исправлении расширения
*/
