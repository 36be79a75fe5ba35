// Package pipeline содержит оркестратор обработки архивов.
package pipeline

import "fmt"

// RunStats содержит агрегаты одного прогона.
// Dry-run заполняет те же поля, поэтому его вывод напрямую сравним с реальным.
type RunStats struct {
	// Found - всего найдено архивов.
	Found int64

	// Processed - обработано в этом прогоне.
	Processed int64

	// Skipped - пропущено как уже обработанные.
	Skipped int64

	// Flattened - архивов с выполненным выравниванием директорий.
	Flattened int64

	// Deleted - удалено пустых архивов.
	Deleted int64

	// Failed - завершилось ошибкой.
	Failed int64

	// BytesSaved - суммарная дельта байт (может быть отрицательной).
	BytesSaved int64

	// ImagesConverted - всего конвертировано изображений.
	ImagesConverted int64
}

// FormatBytes форматирует байты в человекочитаемый формат.
func FormatBytes(bytes int64) string {
	neg := ""
	if bytes < 0 {
		neg = "-"
		bytes = -bytes
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%s%d B", neg, bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%s%.1f %cB", neg, float64(bytes)/float64(div), "KMGTPE"[exp])
}
