// Package watcher предоставляет функциональность слежения за директорией.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/artemshloyda/cbzxl/internal/config"
	"github.com/artemshloyda/cbzxl/internal/scanner"
)

// Watcher следит за директорией и отправляет новые архивы в канал.
type Watcher struct {
	// cfg - конфигурация.
	cfg *config.Config

	// watcher - fsnotify watcher.
	watcher *fsnotify.Watcher

	// debounceTime - время ожидания после последней записи в файл.
	// Архивы копируются долго, обрабатывать их можно только целиком.
	debounceTime time.Duration

	// pending - архивы, ожидающие завершения записи (для debounce).
	pending map[string]time.Time
	mu      sync.Mutex
}

// New создаёт новый Watcher.
func New(cfg *config.Config) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("не удалось создать watcher: %w", err)
	}

	return &Watcher{
		cfg:          cfg,
		watcher:      w,
		debounceTime: 2 * time.Second,
		pending:      make(map[string]time.Time),
	}, nil
}

// SetDebounceTime устанавливает время debounce.
func (w *Watcher) SetDebounceTime(d time.Duration) {
	w.debounceTime = d
}

// Watch запускает слежение за директорией и возвращает канал с архивами.
// Канал закрывается после остановки обеих горутин: отправка в закрытый
// канал при завершении невозможна.
func (w *Watcher) Watch(ctx context.Context) (<-chan scanner.Archive, error) {
	// Добавляем директорию и все поддиректории
	if err := w.addRecursive(w.cfg.InputDir); err != nil {
		return nil, err
	}

	archives := make(chan scanner.Archive, 100)

	var wg sync.WaitGroup
	wg.Add(2)

	// Горутина для обработки событий
	go func() {
		defer wg.Done()
		w.processEvents(ctx)
	}()

	// Горутина для debounce
	go func() {
		defer wg.Done()
		w.processPending(ctx, archives)
	}()

	go func() {
		wg.Wait()
		close(archives)
	}()

	return archives, nil
}

// addRecursive добавляет директорию и все поддиректории в watcher.
// Скрытые и служебные директории пропускаются, как при сканировании.
func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("не удалось добавить директорию %s: %w", path, err)
		}
		return nil
	})
}

// processEvents обрабатывает события от fsnotify.
func (w *Watcher) processEvents(ctx context.Context) {
	defer func() { _ = w.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Обрабатываем только создание и запись файлов
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}

			if info.IsDir() {
				// Новая директория - добавляем в watcher
				if event.Op&fsnotify.Create != 0 && !strings.HasPrefix(info.Name(), ".") {
					_ = w.watcher.Add(event.Name)
				}
				continue
			}

			// Служебные файлы и резервные копии не обрабатываем
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, "._") || strings.HasSuffix(name, ".bak") {
				continue
			}

			if !w.cfg.HasArchiveExtension(filepath.Ext(event.Name)) {
				continue
			}

			// Добавляем в pending для debounce:
			// каждая запись в файл сдвигает момент готовности
			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "Ошибка watcher: %v\n", err)
		}
	}
}

// processPending обрабатывает архивы из pending после debounce.
func (w *Watcher) processPending(ctx context.Context, archives chan<- scanner.Archive) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkPending(ctx, archives)
		}
	}
}

// checkPending проверяет pending архивы и отправляет готовые.
// Отправка идёт без удержания мьютекса, чтобы не блокировать processEvents,
// и с проверкой контекста, чтобы не зависнуть при остановке.
func (w *Watcher) checkPending(ctx context.Context, archives chan<- scanner.Archive) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, lastWrite := range w.pending {
		if now.Sub(lastWrite) < w.debounceTime {
			continue
		}
		// Запись завершилась, архив готов к обработке
		delete(w.pending, path)
		ready = append(ready, path)
	}
	w.mu.Unlock()

	sort.Strings(ready)

	for _, path := range ready {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		relPath, err := filepath.Rel(w.cfg.InputDir, path)
		if err != nil {
			relPath = filepath.Base(path)
		}

		select {
		case <-ctx.Done():
			return
		case archives <- scanner.Archive{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			Mtime:   info.ModTime().Unix(),
		}:
		}
	}
}

// Close закрывает watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

/*
Возможные расширения:
- Добавить фильтрацию по паттерну (glob)
- Добавить обработку переименования файлов
- Добавить rate limiting для массового копирования коллекции
*/
