// Package toolfinder отвечает за поиск внешних инструментов в системе.
package toolfinder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ToolInfo содержит информацию о найденном инструменте.
type ToolInfo struct {
	// Name - имя инструмента (cjxl, magick, file).
	Name string

	// Path - абсолютный путь к бинарнику.
	Path string

	// Version - версия инструмента (например, "0.10.2").
	Version string
}

// Tools содержит все внешние инструменты конвейера.
type Tools struct {
	// Cjxl - энкодер JPEG XL.
	Cjxl *ToolInfo

	// Magick - ImageMagick для цветовых преобразований.
	Magick *ToolInfo

	// File - определение MIME типа по содержимому.
	File *ToolInfo
}

// Fingerprint возвращает строку с версиями инструментов.
// Записывается в БД как tool_version для каждого обработанного архива.
func (t *Tools) Fingerprint() string {
	parts := make([]string, 0, 3)
	for _, info := range []*ToolInfo{t.Cjxl, t.Magick, t.File} {
		if info != nil {
			parts = append(parts, fmt.Sprintf("%s/%s", info.Name, info.Version))
		}
	}
	return strings.Join(parts, " ")
}

// Finder ищет внешние инструменты.
type Finder struct {
	// CjxlPath - пользовательский путь к cjxl (из флага --cjxl-path).
	CjxlPath string

	// MagickPath - пользовательский путь к magick (из флага --magick-path).
	MagickPath string

	// FilePath - пользовательский путь к file (из флага --file-path).
	FilePath string
}

// NewFinder создаёт новый Finder.
func NewFinder(cjxlPath, magickPath, filePath string) *Finder {
	return &Finder{
		CjxlPath:   cjxlPath,
		MagickPath: magickPath,
		FilePath:   filePath,
	}
}

// FindAll ищет все инструменты, необходимые для запуска.
// Если convert=false, cjxl и magick не нужны (режим только flatten).
// Отсутствие любого необходимого инструмента - фатальная ошибка до начала работы.
func (f *Finder) FindAll(convert bool) (*Tools, error) {
	tools := &Tools{}

	fileInfo, err := f.find("file", f.FilePath, "CBZXL_FILE", "--version")
	if err != nil {
		return nil, err
	}
	tools.File = fileInfo

	if !convert {
		return tools, nil
	}

	cjxlInfo, err := f.find("cjxl", f.CjxlPath, "CBZXL_CJXL", "--version")
	if err != nil {
		return nil, err
	}
	tools.Cjxl = cjxlInfo

	magickInfo, err := f.find("magick", f.MagickPath, "CBZXL_MAGICK", "--version")
	if err != nil {
		return nil, err
	}
	tools.Magick = magickInfo

	return tools, nil
}

// find ищет инструмент в следующем порядке:
// 1. customPath (если задан)
// 2. Переменная окружения envVar
// 3. PATH
// 4. Рядом с исполняемым файлом в ./bin/<os-arch>/<name>
func (f *Finder) find(name, customPath, envVar, versionFlag string) (*ToolInfo, error) {
	var candidates []string

	// 1. Пользовательский путь
	if customPath != "" {
		candidates = append(candidates, customPath)
	}

	// 2. Переменная окружения
	if envPath := os.Getenv(envVar); envPath != "" {
		candidates = append(candidates, envPath)
	}

	// 3. PATH
	if pathBin, err := exec.LookPath(name); err == nil {
		candidates = append(candidates, pathBin)
	}

	// 4. Рядом с бинарником
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		platformDir := fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
		candidates = append(candidates,
			filepath.Join(execDir, "bin", platformDir, binaryName(name)),
			filepath.Join(execDir, "bin", binaryName(name)),
			filepath.Join(execDir, binaryName(name)),
		)
	}

	// Проверяем каждого кандидата
	for _, path := range candidates {
		if info, err := f.check(name, path, versionFlag); err == nil {
			return info, nil
		}
	}

	return nil, fmt.Errorf("%s не найден. Проверьте:\n"+
		"  1. Установлен ли %s в системе\n"+
		"  2. Установлена ли переменная окружения %s\n"+
		"  3. Указан ли путь через флаг --%s-path", name, name, envVar, name)
}

// check проверяет, является ли путь рабочим инструментом.
func (f *Finder) check(name, path, versionFlag string) (*ToolInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("файл не найден: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить абсолютный путь: %w", err)
	}

	// Пробуем получить версию. cjxl пишет баннер в stderr,
	// поэтому берём объединённый вывод.
	cmd := exec.Command(absPath, versionFlag)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("не удалось выполнить %s %s: %w", name, versionFlag, err)
	}

	return &ToolInfo{
		Name:    name,
		Path:    absPath,
		Version: ParseVersion(name, string(output)),
	}, nil
}

// ParseVersion извлекает номер версии из вывода инструмента.
// Примеры вывода:
//
//	cjxl:   "cjxl v0.10.2 ..."
//	magick: "Version: ImageMagick 7.1.1-29 ..."
//	file:   "file-5.45"
func ParseVersion(name, output string) string {
	line := output
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)

	switch name {
	case "cjxl":
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			return strings.TrimPrefix(fields[1], "v")
		}
	case "magick":
		fields := strings.Fields(line)
		// "Version: ImageMagick 7.1.1-29"
		if len(fields) >= 3 && fields[0] == "Version:" {
			return fields[2]
		}
	case "file":
		if strings.HasPrefix(line, "file-") {
			return strings.TrimPrefix(line, "file-")
		}
	}

	// Возвращаем первую строку как есть
	return line
}

// binaryName возвращает имя бинарника для текущей ОС.
func binaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

/*
Возможные расширения:
- Кэширование результата поиска
- Проверка минимальной версии cjxl
*/
