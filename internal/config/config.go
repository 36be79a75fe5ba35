// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Config содержит все настройки для обработки архивов.
// Создаётся один раз при старте и далее не изменяется.
type Config struct {
	// InputDir - корневая директория с CBZ архивами.
	InputDir string

	// ArchiveExtensions - расширения архивов (без точки, lowercase).
	ArchiveExtensions []string

	// Effort - уровень усилия cjxl (0-10, выше = медленнее/меньше).
	Effort int

	// Threads - количество параллельных воркеров внутри одного архива.
	Threads int

	// DryRun - режим симуляции без изменения файлов и БД.
	DryRun bool

	// Backup - копировать архив рядом (.bak) перед первым изменением.
	Backup bool

	// NoConvert - не конвертировать изображения (только flatten).
	NoConvert bool

	// NoFlatten - не выравнивать вложенные директории внутри архива.
	NoFlatten bool

	// DeleteEmptyArchives - удалять архивы без распознанных изображений.
	DeleteEmptyArchives bool

	// RecheckAll - игнорировать записи об успешной обработке.
	RecheckAll bool

	// ReprocessFailed - обрабатывать только архивы из таблицы ошибок.
	ReprocessFailed bool

	// ResetDB - удалить обе таблицы состояния перед запуском.
	ResetDB bool

	// Watch - после основного прохода следить за появлением новых архивов.
	Watch bool

	// DBPath - путь к SQLite базе данных.
	DBPath string

	// LogFile - путь к файлу лога (дублирует консольный вывод).
	LogFile string

	// CjxlPath - путь к бинарнику cjxl (опционально).
	CjxlPath string

	// MagickPath - путь к бинарнику magick (опционально).
	MagickPath string

	// FilePath - путь к бинарнику file (опционально).
	FilePath string

	// Quiet - подавить сообщения об отдельных изображениях.
	Quiet bool

	// Verbose - подробный вывод.
	Verbose bool

	// ToolTimeout - таймаут на один вызов file/magick.
	ToolTimeout time.Duration

	// EncodeTimeout - таймаут на одно кодирование cjxl.
	EncodeTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		InputDir:          ".",
		ArchiveExtensions: []string{"cbz", "zip"},
		Effort:            8,
		Threads:           runtime.NumCPU(),
		ToolTimeout:       30 * time.Second,
		EncodeTimeout:     10 * time.Minute,
	}
}

// Validate проверяет корректность конфигурации и заполняет производные пути.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("входная директория не указана")
	}
	if c.Effort < 0 || c.Effort > 10 {
		return fmt.Errorf("effort должен быть от 0 до 10, получено: %d", c.Effort)
	}
	if c.Threads < 1 {
		return fmt.Errorf("количество воркеров должно быть >= 1, получено: %d", c.Threads)
	}
	if len(c.ArchiveExtensions) == 0 {
		return fmt.Errorf("не указаны расширения архивов")
	}
	if c.Quiet && c.Verbose {
		return fmt.Errorf("флаги --quiet и --verbose несовместимы")
	}
	if c.RecheckAll && c.ReprocessFailed {
		return fmt.Errorf("флаги --recheck-all и --reprocess-failed несовместимы")
	}
	if c.ToolTimeout <= 0 || c.EncodeTimeout <= 0 {
		return fmt.Errorf("таймауты должны быть положительными")
	}
	if c.ToolTimeout >= c.EncodeTimeout {
		return fmt.Errorf("таймаут инструментов должен быть меньше таймаута кодирования")
	}

	// Устанавливаем пути по умолчанию внутри служебной директории
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.InputDir, ".cbzxl", "state.sqlite")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.InputDir, ".cbzxl", "conversion.log")
	}

	return nil
}

// HasArchiveExtension проверяет, является ли расширение файла архивным.
func (c *Config) HasArchiveExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, e := range c.ArchiveExtensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

/*
Возможные расширения:
- Добавить поддержку exclude-паттернов для директорий
- Добавить отдельный таймаут на весь архив
- Добавить лимит на размер архива
*/
