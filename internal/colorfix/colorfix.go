// Package colorfix содержит цветовые исправления перед кодированием.
package colorfix

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/artemshloyda/cbzxl/internal/logging"
)

// Normalizer выполняет цветовые исправления через внешний magick.
// Оба исправления best-effort: их ошибка логируется как предупреждение
// и не блокирует последующее кодирование.
type Normalizer struct {
	// magickPath - путь к бинарнику magick.
	magickPath string

	// timeout - таймаут на один вызов magick.
	timeout time.Duration

	// log - логгер.
	log *logging.Logger
}

// New создаёт новый Normalizer.
func New(magickPath string, timeout time.Duration, log *logging.Logger) *Normalizer {
	return &Normalizer{
		magickPath: magickPath,
		timeout:    timeout,
		log:        log,
	}
}

// Normalize применяет исправления к файлу перед кодированием:
//   - PNG: удаляет встроенный ICC профиль (битые grayscale профили
//     приводят к ошибкам энкодера);
//   - JPEG: если цветовое пространство CMYK, конвертирует в sRGB.
func (n *Normalizer) Normalize(ctx context.Context, path, mime string) {
	switch mime {
	case "image/png":
		if err := n.stripProfile(ctx, path); err != nil {
			n.log.Warnf("Не удалось удалить ICC профиль %s: %v", filepath.Base(path), err)
		}
	case "image/jpeg":
		space, err := n.detectColorspace(ctx, path)
		if err != nil {
			n.log.Warnf("Не удалось определить цветовое пространство %s: %v", filepath.Base(path), err)
			return
		}
		if space != "CMYK" {
			return
		}
		if err := n.convertToSRGB(ctx, path); err != nil {
			n.log.Warnf("Не удалось конвертировать CMYK → sRGB %s: %v", filepath.Base(path), err)
		}
	}
}

// stripProfile удаляет метаданные (включая ICC профиль) на месте.
func (n *Normalizer) stripProfile(ctx context.Context, path string) error {
	return n.run(ctx, "mogrify", "-strip", path)
}

// detectColorspace возвращает цветовое пространство изображения.
func (n *Normalizer) detectColorspace(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, n.magickPath, "identify", "-format", "%[colorspace]", path)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", wrapStderr(err, &stderr)
	}

	return strings.TrimSpace(out.String()), nil
}

// convertToSRGB конвертирует изображение в sRGB на месте.
func (n *Normalizer) convertToSRGB(ctx context.Context, path string) error {
	return n.run(ctx, path, "-colorspace", "sRGB", path)
}

// run выполняет magick с таймаутом.
func (n *Normalizer) run(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, n.magickPath, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return wrapStderr(err, &stderr)
	}
	return nil
}

// wrapStderr дополняет ошибку запуска текстом stderr.
func wrapStderr(err error, stderr *bytes.Buffer) error {
	msg := strings.TrimSpace(stderr.String())
	if msg != "" {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return err
}

/*
Возможные расширения:
- Кэшировать результат identify для повторных запусков
- Добавить исправление повреждённых EXIF ориентаций
*/
