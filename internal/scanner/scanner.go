// Package scanner отвечает за поиск CBZ архивов в корневой директории.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artemshloyda/cbzxl/internal/config"
)

// Archive представляет найденный архив.
type Archive struct {
	// Path - абсолютный путь к архиву.
	Path string

	// RelPath - путь относительно корневой директории.
	// Используется как ключ записи в БД.
	RelPath string

	// Size - размер архива в байтах.
	Size int64

	// Mtime - время модификации (unix timestamp).
	Mtime int64
}

// Scanner ищет архивы в корневой директории.
type Scanner struct {
	cfg *config.Config
}

// New создаёт новый Scanner.
func New(cfg *config.Config) *Scanner {
	return &Scanner{cfg: cfg}
}

// Scan рекурсивно обходит корневую директорию и возвращает найденные архивы,
// отсортированные по относительному пути. Ошибка доступа к самому корню
// фатальна; ошибки на отдельных поддиректориях логируются и пропускаются.
func (s *Scanner) Scan() ([]Archive, error) {
	root := s.cfg.InputDir
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("не удалось открыть корневую директорию %s: %w", root, err)
	}

	var archives []Archive

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Логируем ошибку, но продолжаем
			fmt.Fprintf(os.Stderr, "Предупреждение: не удалось прочитать %s: %v\n", path, err)
			return nil
		}

		if d.IsDir() {
			// Пропускаем скрытые директории и директорию с БД
			name := d.Name()
			if path != root && (name == ".cbzxl" || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		// Пропускаем macOS metadata файлы (начинаются с ._*)
		if strings.HasPrefix(d.Name(), "._") {
			return nil
		}

		// Проверяем расширение
		if !s.cfg.HasArchiveExtension(filepath.Ext(path)) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Предупреждение: не удалось получить info %s: %v\n", path, err)
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			relPath = d.Name()
		}

		archives = append(archives, Archive{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			Mtime:   info.ModTime().Unix(),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("не удалось обойти %s: %w", root, err)
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].RelPath < archives[j].RelPath
	})

	return archives, nil
}

// Describe возвращает Archive для одного файла (используется watch-режимом).
func (s *Scanner) Describe(path string) (Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Archive{}, fmt.Errorf("не удалось получить info %s: %w", path, err)
	}

	relPath, err := filepath.Rel(s.cfg.InputDir, path)
	if err != nil {
		relPath = filepath.Base(path)
	}

	return Archive{
		Path:    path,
		RelPath: relPath,
		Size:    info.Size(),
		Mtime:   info.ModTime().Unix(),
	}, nil
}

/*
Возможные расширения:
- Добавить поддержку exclude-паттернов
- Добавить поддержку symlinks
*/
