// Package classify определяет истинный тип содержимого файлов и
// принимает архивное решение о конвертации.
package classify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Bucket определяет категорию файла по его истинному типу содержимого.
type Bucket int

const (
	// BucketConvertibleJPEG - JPEG, подлежит конвертации в JXL.
	BucketConvertibleJPEG Bucket = iota
	// BucketConvertiblePNG - PNG, подлежит конвертации в JXL.
	BucketConvertiblePNG
	// BucketAlreadyTarget - уже JPEG XL.
	BucketAlreadyTarget
	// BucketOtherImage - другой известный формат изображения (webp, avif, gif, tiff, bmp).
	BucketOtherImage
	// BucketUnrecognized - не распознан как изображение.
	BucketUnrecognized
)

// extByMIME сопоставляет MIME тип каноническому расширению.
var extByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/jxl":  ".jxl",
	"image/webp": ".webp",
	"image/avif": ".avif",
	"image/gif":  ".gif",
	"image/tiff": ".tiff",
	"image/bmp":  ".bmp",
}

// BucketForMIME возвращает категорию для MIME типа.
func BucketForMIME(mime string) Bucket {
	switch mime {
	case "image/jpeg":
		return BucketConvertibleJPEG
	case "image/png":
		return BucketConvertiblePNG
	case "image/jxl":
		return BucketAlreadyTarget
	case "image/webp", "image/avif", "image/gif", "image/tiff", "image/bmp":
		return BucketOtherImage
	default:
		return BucketUnrecognized
	}
}

// CanonicalExt возвращает каноническое расширение для MIME типа
// (пустая строка для нераспознанных типов).
func CanonicalExt(mime string) string {
	return extByMIME[mime]
}

// Outcome - архивное решение по результатам классификации и конвертации.
type Outcome int

const (
	// OutcomeSavedSpace - конвертация уменьшила суммарный размер.
	OutcomeSavedSpace Outcome = iota
	// OutcomeNoSpaceSaved - конвертация прошла, но выигрыша нет.
	OutcomeNoSpaceSaved
	// OutcomeAlreadyTarget - в архиве только JXL, конвертировать нечего.
	OutcomeAlreadyTarget
	// OutcomeNoEligibleFormat - конвертируемые файлы есть, но конвертация отключена.
	OutcomeNoEligibleFormat
	// OutcomeOtherFormatsOnly - только другие форматы изображений (webp/avif/...).
	OutcomeOtherFormatsOnly
	// OutcomeNoImagesRecognized - изображения не распознаны вовсе.
	OutcomeNoImagesRecognized
)

// String возвращает человекочитаемое имя решения.
func (o Outcome) String() string {
	switch o {
	case OutcomeSavedSpace:
		return "saved space"
	case OutcomeNoSpaceSaved:
		return "no space saved"
	case OutcomeAlreadyTarget:
		return "already JXL"
	case OutcomeNoEligibleFormat:
		return "conversion disabled"
	case OutcomeOtherFormatsOnly:
		return "other image formats only"
	case OutcomeNoImagesRecognized:
		return "no images recognized"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Summary содержит архивные агрегаты классификации.
type Summary struct {
	// JPEGCount - количество JPEG членов.
	JPEGCount int

	// PNGCount - количество PNG членов.
	PNGCount int

	// TargetCount - количество членов уже в JXL.
	TargetCount int

	// OtherCount - количество членов других форматов изображений.
	OtherCount int

	// UnrecognizedCount - количество нераспознанных членов.
	UnrecognizedCount int

	// OtherExtCounts - распределение расширений для других форматов
	// (для логирования OtherFormatsOnly).
	OtherExtCounts map[string]int
}

// ImageCount возвращает общее число распознанных изображений.
func (s *Summary) ImageCount() int {
	return s.JPEGCount + s.PNGCount + s.TargetCount + s.OtherCount
}

// ConvertibleCount возвращает число членов, подлежащих конвертации.
func (s *Summary) ConvertibleCount() int {
	return s.JPEGCount + s.PNGCount
}

// DominantType возвращает преобладающий исходный формат:
// "JPG", "PNG", "Mixed" (поровну и не ноль) или "N/A".
func (s *Summary) DominantType() string {
	switch {
	case s.JPEGCount > s.PNGCount:
		return "JPG"
	case s.PNGCount > s.JPEGCount:
		return "PNG"
	case s.JPEGCount > 0:
		return "Mixed"
	default:
		return "N/A"
	}
}

// MajorityOtherExt возвращает самое частое расширение среди других форматов.
func (s *Summary) MajorityOtherExt() string {
	best, bestCount := "", 0
	for ext, count := range s.OtherExtCounts {
		if count > bestCount || (count == bestCount && ext < best) {
			best, bestCount = ext, count
		}
	}
	return best
}

// PreEncodeOutcome принимает решение до кодирования.
// Возвращает Outcome и true, если кодирование не требуется.
func (s *Summary) PreEncodeOutcome(convertEnabled bool) (Outcome, bool) {
	if s.ConvertibleCount() == 0 {
		switch {
		case s.TargetCount > 0:
			return OutcomeAlreadyTarget, true
		case s.OtherCount > 0:
			return OutcomeOtherFormatsOnly, true
		default:
			return OutcomeNoImagesRecognized, true
		}
	}
	if !convertEnabled {
		return OutcomeNoEligibleFormat, true
	}
	// Кодирование требуется, итог определится по сумме дельт
	return OutcomeSavedSpace, false
}

// FinalOutcome возвращает итог после кодирования по суммарной дельте.
func FinalOutcome(savedBytes int64) Outcome {
	if savedBytes > 0 {
		return OutcomeSavedSpace
	}
	return OutcomeNoSpaceSaved
}

// Member представляет классифицированный файл рабочей директории.
type Member struct {
	// Path - текущий путь файла (после возможного исправления расширения).
	Path string

	// MIME - определённый MIME тип.
	MIME string

	// Bucket - категория файла.
	Bucket Bucket
}

// SniffFunc определяет MIME тип файла по содержимому.
type SniffFunc func(ctx context.Context, path string) (string, error)

// NewFileSniffer возвращает SniffFunc на основе внешней утилиты file.
func NewFileSniffer(filePath string, timeout time.Duration) SniffFunc {
	return func(ctx context.Context, path string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var out, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, filePath, "--mime-type", "-b", path)
		cmd.Stdout = &out
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return "", fmt.Errorf("file --mime-type: %s: %w", msg, err)
			}
			return "", fmt.Errorf("file --mime-type: %w", err)
		}

		return strings.TrimSpace(out.String()), nil
	}
}

/*
Возможные расширения:
- Определять MIME по magic-байтам без внешней утилиты как fallback
- Добавить поддержку HEIC/HEIF как other-known-image
*/
