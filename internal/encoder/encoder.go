// Package encoder содержит кодирование изображений в JPEG XL через внешний cjxl.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/artemshloyda/cbzxl/internal/classify"
	"github.com/artemshloyda/cbzxl/internal/colorfix"
	"github.com/artemshloyda/cbzxl/internal/logging"
)

// reconstructionErrMarker - известный класс ошибки cjxl: для некоторых JPEG
// невозможно создать данные побитового восстановления. Лечится повторным
// запуском с отключённым восстановлением.
const reconstructionErrMarker = "reconstruction data could not be created"

// TmpSuffix - суффикс незавершённого вывода энкодера. Добавляется к полному
// имени исходника (cover.jpg.converting.jxl), поэтому исходники с одинаковым
// stem никогда не делят временный путь.
// Остатки с этим суффиксом от прерванных запусков удаляются после распаковки.
const TmpSuffix = ".converting.jxl"

// Result содержит результат кодирования одного изображения.
type Result struct {
	// Converted - было ли изображение заменено на JXL.
	Converted bool

	// SrcPath - путь к исходному файлу.
	SrcPath string

	// DstPath - путь к выходному .jxl (если создан).
	DstPath string

	// OriginalSize - размер исходного файла в байтах.
	OriginalSize int64

	// EncodedSize - размер выходного файла (если создан).
	EncodedSize int64

	// Saved - дельта байт (OriginalSize - EncodedSize).
	// Неконвертированный файл даёт 0. Может быть отрицательной:
	// успешно созданный вывод сохраняется независимо от размера.
	Saved int64

	// Retried - был ли выполнен повтор без побитового восстановления.
	Retried bool

	// Err - ошибка кодирования (файл остался неконвертированным).
	Err error

	// Stderr - вывод stderr от cjxl.
	Stderr string

	// Duration - время кодирования.
	Duration time.Duration
}

// Encoder кодирует изображения через внешний cjxl.
type Encoder struct {
	// cjxlPath - путь к бинарнику cjxl.
	cjxlPath string

	// effort - уровень усилия (0-10).
	effort int

	// timeout - таймаут на один запуск cjxl.
	timeout time.Duration

	// normalizer - цветовые исправления перед кодированием.
	normalizer *colorfix.Normalizer

	// sniff - повторная проверка MIME перед кодированием.
	sniff classify.SniffFunc

	// log - логгер.
	log *logging.Logger
}

// New создаёт новый Encoder.
func New(cjxlPath string, effort int, timeout time.Duration, normalizer *colorfix.Normalizer, sniff classify.SniffFunc, log *logging.Logger) *Encoder {
	return &Encoder{
		cjxlPath:   cjxlPath,
		effort:     effort,
		timeout:    timeout,
		normalizer: normalizer,
		sniff:      sniff,
		log:        log,
	}
}

// Encode кодирует один файл в JPEG XL.
// Ошибки уровня изображения не покидают эту функцию: они сворачиваются
// в Result с нулевой дельтой, архив продолжает обрабатываться.
func (e *Encoder) Encode(ctx context.Context, path string) Result {
	start := time.Now()
	res := Result{SrcPath: path}

	// Защитная повторная проверка типа после классификации
	mime, err := e.sniff(ctx, path)
	if err != nil || (mime != "image/jpeg" && mime != "image/png") {
		res.Duration = time.Since(start)
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		res.Err = fmt.Errorf("не удалось получить размер %s: %w", path, err)
		res.Duration = time.Since(start)
		return res
	}
	res.OriginalSize = info.Size()

	// Цветовые исправления best-effort
	e.normalizer.Normalize(ctx, path, mime)

	tmp := path + TmpSuffix

	stderr, err := e.runCjxl(ctx, path, tmp, true)
	if err != nil && strings.Contains(stderr, reconstructionErrMarker) {
		// Известный класс ошибки: повторяем один раз
		// с отключённым побитовым восстановлением JPEG.
		_ = os.Remove(tmp)
		res.Retried = true
		stderr, err = e.runCjxl(ctx, path, tmp, false)
	}
	res.Stderr = stderr

	if err != nil {
		_ = os.Remove(tmp)
		if errors.Is(err, context.DeadlineExceeded) {
			res.Err = fmt.Errorf("таймаут кодирования (%s)", e.timeout)
		} else {
			res.Err = fmt.Errorf("cjxl: %w", err)
		}
		res.Duration = time.Since(start)
		return res
	}

	out, err := os.Stat(tmp)
	if err != nil || out.Size() == 0 {
		// Пустой артефакт не считается успехом
		_ = os.Remove(tmp)
		res.Err = fmt.Errorf("cjxl не создал вывод для %s", filepath.Base(path))
		res.Duration = time.Since(start)
		return res
	}

	dst, err := claimOutput(strings.TrimSuffix(path, filepath.Ext(path)))
	if err != nil {
		_ = os.Remove(tmp)
		res.Err = fmt.Errorf("не удалось занять имя вывода для %s: %w", filepath.Base(path), err)
		res.Duration = time.Since(start)
		return res
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		_ = os.Remove(dst)
		res.Err = fmt.Errorf("не удалось переименовать %s → %s: %w", tmp, dst, err)
		res.Duration = time.Since(start)
		return res
	}

	// Успех: исходник удаляется, вывод сохраняется независимо от размера
	if err := os.Remove(path); err != nil {
		res.Err = fmt.Errorf("не удалось удалить исходник %s: %w", path, err)
		_ = os.Remove(dst)
		res.Duration = time.Since(start)
		return res
	}

	res.Converted = true
	res.DstPath = dst
	res.EncodedSize = out.Size()
	res.Saved = res.OriginalSize - res.EncodedSize
	res.Duration = time.Since(start)
	return res
}

// claimOutput занимает свободное имя вывода <stem>.jxl через O_EXCL.
// Исходники с одинаковым stem в одной директории (cover.jpg и cover.png)
// получают числовой суффикс вместо перезаписи чужого вывода, в том числе
// при параллельных воркерах.
func claimOutput(stem string) (string, error) {
	for i := 0; ; i++ {
		dst := stem + ".jxl"
		if i > 0 {
			dst = fmt.Sprintf("%s_%d.jxl", stem, i)
		}

		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_ = f.Close()
			return dst, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
	}
}

// runCjxl выполняет один запуск cjxl с таймаутом.
// reconstruction=false отключает сохранение данных побитового восстановления JPEG.
func (e *Encoder) runCjxl(ctx context.Context, src, dst string, reconstruction bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{"-d", "0", fmt.Sprintf("--effort=%d", e.effort)}
	if !reconstruction {
		args = append(args, "--lossless_jpeg=0")
	}
	args = append(args, src, dst)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.cjxlPath, args...)
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return stderr.String(), context.DeadlineExceeded
	}
	return stderr.String(), err
}

/*
Возможные расширения:
- Передавать --num_threads cjxl, когда воркеров меньше чем ядер
- Добавить поддержку lossy режима (distance > 0)
*/
