// Package flatten выравнивает вложенные директории внутри рабочего дерева архива.
package flatten

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artemshloyda/cbzxl/internal/logging"
)

// metadataMarkers - служебные файлы платформ, не мешающие удалению
// опустевшей директории (удаляются вместе с ней).
var metadataMarkers = map[string]bool{
	".DS_Store": true,
	"Thumbs.db": true,
}

// isMetadataMarker проверяет, является ли имя служебным файлом платформы.
func isMetadataMarker(name string) bool {
	return metadataMarkers[name] || strings.HasPrefix(name, "._")
}

// Flattener переносит файлы из поддиректорий в корень рабочего дерева.
type Flattener struct {
	// log - логгер.
	log *logging.Logger

	// verbose - логировать каждое перемещение.
	verbose bool
}

// New создаёт новый Flattener.
func New(log *logging.Logger, verbose bool) *Flattener {
	return &Flattener{log: log, verbose: verbose}
}

// HasSubdirectories проверяет, есть ли в дереве поддиректории.
func HasSubdirectories(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("не удалось прочитать %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			return true, nil
		}
	}
	return false, nil
}

// Flatten переносит все вложенные файлы в корень дерева.
// Коллизии имён разрешаются числовым суффиксом перед расширением.
// Ошибка на отдельном файле логируется и не прерывает обработку.
// Возвращает true, если хотя бы один файл был перемещён.
func (f *Flattener) Flatten(root string) (bool, error) {
	var nested []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Dir(path) != filepath.Clean(root) {
			nested = append(nested, path)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("не удалось обойти рабочее дерево: %w", err)
	}

	// Детерминированный порядок перемещения (и нумерации коллизий)
	sort.Strings(nested)

	moved := false
	for _, src := range nested {
		name := filepath.Base(src)
		if isMetadataMarker(name) {
			// Служебные файлы не переносим, их удалит pruneEmptyDirs
			continue
		}

		dst := resolveCollision(root, name)
		if err := os.Rename(src, dst); err != nil {
			f.log.Warnf("Не удалось переместить %s: %v", name, err)
			continue
		}

		if f.verbose {
			f.log.Printf("📂 %s → %s", name, filepath.Base(dst))
		}
		moved = true
	}

	if err := pruneEmptyDirs(root); err != nil {
		return moved, err
	}

	return moved, nil
}

// resolveCollision возвращает свободный путь в корне для имени name.
// При коллизии добавляется числовой суффикс перед расширением:
// page.jxl → page_1.jxl → page_2.jxl ...
func resolveCollision(root, name string) string {
	dst := filepath.Join(root, name)
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		return dst
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(root, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// pruneEmptyDirs удаляет опустевшие поддиректории снизу вверх.
// Директория, где остались только служебные файлы, считается пустой.
func pruneEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != filepath.Clean(root) {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("не удалось обойти поддиректории: %w", err)
	}

	// Снизу вверх: сначала самые глубокие
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		empty := true
		for _, e := range entries {
			if e.IsDir() || !isMetadataMarker(e.Name()) {
				empty = false
				break
			}
		}
		if !empty {
			continue
		}

		// Служебные файлы удаляются вместе с директорией
		_ = os.RemoveAll(dir)
	}

	return nil
}

/*
Возможные расширения:
- Сохранять порядок страниц при коллизиях с учётом исходной директории
- Добавить лимит глубины вложенности
*/
