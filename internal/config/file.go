// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig представляет структуру конфигурационного файла YAML.
// Все поля опциональны - если не указаны, используются значения по умолчанию.
type FileConfig struct {
	// Input - настройки входных данных.
	Input *InputConfig `yaml:"input,omitempty"`

	// Encoding - настройки кодирования.
	Encoding *EncodingConfig `yaml:"encoding,omitempty"`

	// Processing - настройки обработки.
	Processing *ProcessingConfig `yaml:"processing,omitempty"`

	// Paths - настройки путей.
	Paths *PathsConfig `yaml:"paths,omitempty"`
}

// InputConfig содержит настройки входных данных.
type InputConfig struct {
	// Dir - корневая директория с архивами.
	Dir string `yaml:"dir,omitempty"`

	// Extensions - список расширений архивов.
	Extensions []string `yaml:"extensions,omitempty"`
}

// EncodingConfig содержит настройки кодирования.
type EncodingConfig struct {
	// Effort - уровень усилия cjxl (0-10).
	Effort *int `yaml:"effort,omitempty"`

	// Preset - профиль кодирования (quick, balanced, archive).
	Preset string `yaml:"preset,omitempty"`
}

// ProcessingConfig содержит настройки обработки.
type ProcessingConfig struct {
	// Threads - количество параллельных воркеров.
	Threads int `yaml:"threads,omitempty"`

	// NoConvert - не конвертировать изображения.
	NoConvert bool `yaml:"no_convert,omitempty"`

	// NoFlatten - не выравнивать вложенные директории.
	NoFlatten bool `yaml:"no_flatten,omitempty"`

	// DeleteEmptyArchives - удалять архивы без изображений.
	DeleteEmptyArchives bool `yaml:"delete_empty_archives,omitempty"`

	// Backup - копировать архив перед изменением.
	Backup bool `yaml:"backup,omitempty"`

	// Verbose - подробный вывод.
	Verbose bool `yaml:"verbose,omitempty"`

	// Quiet - подавить сообщения об отдельных изображениях.
	Quiet bool `yaml:"quiet,omitempty"`
}

// PathsConfig содержит настройки путей.
type PathsConfig struct {
	// DB - путь к SQLite базе данных.
	DB string `yaml:"db,omitempty"`

	// LogFile - путь к файлу лога.
	LogFile string `yaml:"log_file,omitempty"`

	// CjxlPath - путь к бинарнику cjxl.
	CjxlPath string `yaml:"cjxl_path,omitempty"`

	// MagickPath - путь к бинарнику magick.
	MagickPath string `yaml:"magick_path,omitempty"`

	// FilePath - путь к бинарнику file.
	FilePath string `yaml:"file_path,omitempty"`
}

// DefaultConfigPaths возвращает список путей для поиска конфигурационного файла.
// Поиск выполняется в следующем порядке:
// 1. ./cbzxl.yaml (текущая директория)
// 2. ./cbzxl.yml
// 3. ~/.config/cbzxl/config.yaml
// 4. ~/.config/cbzxl/config.yml
func DefaultConfigPaths() []string {
	paths := []string{
		"cbzxl.yaml",
		"cbzxl.yml",
	}

	// Добавляем путь в домашней директории
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "cbzxl", "config.yaml"),
			filepath.Join(home, ".config", "cbzxl", "config.yml"),
		)
	}

	return paths
}

// LoadFromFile загружает конфигурацию из указанного файла.
// Возвращает nil, nil если файл не существует.
func LoadFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML в %s: %w", path, err)
	}

	return &fc, nil
}

// FindAndLoadConfig ищет и загружает конфигурационный файл из стандартных путей.
// Если configPath указан явно, использует только его.
// Возвращает nil, nil если файл не найден.
func FindAndLoadConfig(configPath string) (*FileConfig, string, error) {
	// Если путь указан явно
	if configPath != "" {
		fc, err := LoadFromFile(configPath)
		if err != nil {
			return nil, "", err
		}
		if fc == nil {
			return nil, "", fmt.Errorf("файл конфигурации не найден: %s", configPath)
		}
		return fc, configPath, nil
	}

	// Ищем в стандартных путях
	for _, path := range DefaultConfigPaths() {
		fc, err := LoadFromFile(path)
		if err != nil {
			return nil, "", err
		}
		if fc != nil {
			return fc, path, nil
		}
	}

	return nil, "", nil
}

// ApplyToConfig применяет настройки из файла к основной конфигурации.
// CLI флаги имеют приоритет над файлом конфигурации, поэтому
// эта функция должна вызываться до парсинга CLI флагов.
func (fc *FileConfig) ApplyToConfig(cfg *Config) error {
	if fc == nil {
		return nil
	}

	// Input
	if fc.Input != nil {
		if fc.Input.Dir != "" {
			cfg.InputDir = fc.Input.Dir
		}
		if len(fc.Input.Extensions) > 0 {
			cfg.ArchiveExtensions = fc.Input.Extensions
		}
	}

	// Encoding
	if fc.Encoding != nil {
		if fc.Encoding.Preset != "" {
			if err := cfg.ApplyPreset(fc.Encoding.Preset); err != nil {
				return err
			}
		}
		if fc.Encoding.Effort != nil {
			cfg.Effort = *fc.Encoding.Effort
		}
	}

	// Processing
	if fc.Processing != nil {
		if fc.Processing.Threads > 0 {
			cfg.Threads = fc.Processing.Threads
		}
		if fc.Processing.NoConvert {
			cfg.NoConvert = true
		}
		if fc.Processing.NoFlatten {
			cfg.NoFlatten = true
		}
		if fc.Processing.DeleteEmptyArchives {
			cfg.DeleteEmptyArchives = true
		}
		if fc.Processing.Backup {
			cfg.Backup = true
		}
		if fc.Processing.Verbose {
			cfg.Verbose = true
		}
		if fc.Processing.Quiet {
			cfg.Quiet = true
		}
	}

	// Paths
	if fc.Paths != nil {
		if fc.Paths.DB != "" {
			cfg.DBPath = fc.Paths.DB
		}
		if fc.Paths.LogFile != "" {
			cfg.LogFile = fc.Paths.LogFile
		}
		if fc.Paths.CjxlPath != "" {
			cfg.CjxlPath = fc.Paths.CjxlPath
		}
		if fc.Paths.MagickPath != "" {
			cfg.MagickPath = fc.Paths.MagickPath
		}
		if fc.Paths.FilePath != "" {
			cfg.FilePath = fc.Paths.FilePath
		}
	}

	return nil
}

// GenerateExampleConfig генерирует пример конфигурационного файла.
func GenerateExampleConfig() string {
	return `# cbzxl Configuration File
# Все параметры опциональны - если не указаны, используются значения по умолчанию.
# CLI флаги имеют приоритет над этим файлом.

input:
  # Корневая директория с CBZ архивами
  dir: "."
  # Расширения архивов (без точки)
  extensions:
    - cbz
    - zip

encoding:
  # Профиль: quick, balanced, archive
  preset: ""
  # Уровень усилия cjxl (0-10, выше = медленнее/меньше)
  effort: 8

processing:
  # Количество параллельных воркеров внутри архива (по умолчанию = CPU cores)
  threads: 8
  # Не конвертировать изображения (только flatten)
  no_convert: false
  # Не выравнивать вложенные директории
  no_flatten: false
  # Удалять архивы без распознанных изображений
  delete_empty_archives: false
  # Копировать архив рядом (.bak) перед изменением
  backup: false
  # Подробный вывод
  verbose: false
  # Подавить сообщения об отдельных изображениях
  quiet: false

paths:
  # Путь к SQLite базе данных (по умолчанию <input>/.cbzxl/state.sqlite)
  db: ""
  # Путь к файлу лога (по умолчанию <input>/.cbzxl/conversion.log)
  log_file: ""
  # Пути к бинарникам (по умолчанию автопоиск)
  cjxl_path: ""
  magick_path: ""
  file_path: ""
`
}

/*
Возможные расширения:
- Добавить поддержку TOML формата
- Добавить команду 'config init' для генерации конфига
- Добавить поддержку переменных окружения в конфиге
*/
