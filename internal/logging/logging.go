// Package logging содержит логгер с дублированием вывода в файл.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Logger пишет сообщения в консоль и параллельно в append-only файл лога.
// В dry-run режиме каждая строка получает префикс-маркер.
type Logger struct {
	// mu защищает file и consoleSink.
	mu sync.Mutex

	// file - открытый файл лога (nil, если лог в файл отключён).
	file *os.File

	// filePath - путь к файлу лога.
	filePath string

	// dryRun - добавлять ли префикс [dry-run] к каждой строке.
	dryRun bool

	// consoleSink - куда выводить консольные строки.
	// Подменяется прогресс-баром, чтобы сообщения не рвали отрисовку.
	consoleSink func(line string)
}

// New создаёт новый Logger. Если logFile пуст, вывод идёт только в консоль.
// В dry-run режиме файл лога не открывается: симуляция ничего не изменяет.
func New(logFile string, dryRun bool) (*Logger, error) {
	l := &Logger{
		dryRun: dryRun,
		consoleSink: func(line string) {
			fmt.Println(line)
		},
	}

	if logFile != "" && !dryRun {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию для лога: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("не удалось открыть файл лога: %w", err)
		}
		l.file = f
		l.filePath = logFile
	}

	return l, nil
}

// SetConsoleSink подменяет вывод консольных строк.
func (l *Logger) SetConsoleSink(sink func(line string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consoleSink = sink
}

// FilePath возвращает путь к файлу лога (пустая строка, если лог отключён).
func (l *Logger) FilePath() string {
	return l.filePath
}

// Close закрывает файл лога.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Printf форматирует сообщение и выводит его в консоль и файл.
func (l *Logger) Printf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if l.dryRun {
		line = "[dry-run] " + line
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.consoleSink(line)
	if l.file != nil {
		_, _ = l.file.WriteString(line + "\n")
	}
}

// Warnf выводит предупреждение.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Printf("⚠️  "+format, args...)
}

// Errorf выводит сообщение об ошибке.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Printf("❌ "+format, args...)
}

/*
Возможные расширения:
- Добавить уровни логирования с фильтрацией
- Добавить ротацию файла лога по размеру
*/
