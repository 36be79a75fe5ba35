// Package archive содержит работу с zip-контейнером CBZ.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extract распаковывает архив в директорию dir.
// Пути членов с выходом за пределы dir отклоняются.
func Extract(src, dir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("не удалось открыть архив %s: %w", src, err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if err := extractMember(f, dir); err != nil {
			return fmt.Errorf("не удалось распаковать %s: %w", f.Name, err)
		}
	}

	return nil
}

// extractMember распаковывает один член архива.
func extractMember(f *zip.File, dir string) error {
	// Защита от zip slip
	dst := filepath.Join(dir, filepath.FromSlash(f.Name))
	if !strings.HasPrefix(dst, filepath.Clean(dir)+string(os.PathSeparator)) {
		return fmt.Errorf("недопустимый путь члена архива: %s", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(dst, 0755)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}

// Repack собирает новый архив из содержимого dir и атомарно заменяет dst.
// Запись идёт во временный файл в той же директории, затем rename,
// поэтому падение посреди записи не повреждает оригинал.
func Repack(dir, dst string) error {
	members, err := collectMembers(dir)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".repack-*.cbz")
	if err != nil {
		return fmt.Errorf("не удалось создать временный архив: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeArchive(tmp, dir, members); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("не удалось закрыть временный архив: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("не удалось заменить архив %s: %w", dst, err)
	}

	return nil
}

// collectMembers возвращает относительные пути всех файлов в dir.
func collectMembers(dir string) ([]string, error) {
	var members []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		members = append(members, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("не удалось обойти рабочую директорию: %w", err)
	}

	// Детерминированный порядок членов в архиве
	sort.Strings(members)
	return members, nil
}

// writeArchive пишет zip с deflate сжатием.
func writeArchive(w io.Writer, dir string, members []string) error {
	zw := zip.NewWriter(w)

	for _, rel := range members {
		hdr := &zip.FileHeader{
			Name:   filepath.ToSlash(rel),
			Method: zip.Deflate,
		}

		mw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("не удалось создать член %s: %w", rel, err)
		}

		f, err := os.Open(filepath.Join(dir, rel))
		if err != nil {
			return fmt.Errorf("не удалось открыть %s: %w", rel, err)
		}

		_, err = io.Copy(mw, f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("не удалось записать %s: %w", rel, err)
		}
	}

	return zw.Close()
}

// Backup копирует архив рядом с оригиналом с суффиксом .bak.
// Существующая резервная копия не перезаписывается.
func Backup(path string) (string, error) {
	bakPath := path + ".bak"
	if _, err := os.Stat(bakPath); err == nil {
		return bakPath, nil
	}

	if err := copyFile(path, bakPath); err != nil {
		return "", fmt.Errorf("не удалось создать резервную копию: %w", err)
	}

	return bakPath, nil
}

// copyFile копирует файл из src в dst.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return err
	}

	return dstFile.Close()
}

/*
Возможные расширения:
- Сохранять время модификации членов при repack
- Добавить поддержку zip64 для очень больших архивов
*/
