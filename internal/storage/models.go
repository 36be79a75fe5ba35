// Package storage содержит модели и логику работы с SQLite базой данных.
package storage

// Status определяет итоговый статус архива.
type Status string

const (
	// StatusProcessed - архив успешно обработан.
	StatusProcessed Status = "processed"
	// StatusFailed - обработка архива завершилась ошибкой.
	StatusFailed Status = "failed"
	// StatusDeleted - архив удалён с диска (не содержал изображений).
	StatusDeleted Status = "deleted"
)

// Record представляет итог обработки одного архива.
// Ровно одна текущая запись на путь: повторный запуск заменяет запись,
// история не хранится.
type Record struct {
	// Path - путь архива относительно корня сканирования (первичный ключ).
	Path string `db:"path"`

	// OriginalSize - размер архива до обработки в байтах.
	OriginalSize int64 `db:"original_size"`

	// FinalSize - размер архива после обработки в байтах.
	FinalSize int64 `db:"final_size"`

	// BytesSaved - сэкономлено байт (может быть отрицательным).
	BytesSaved int64 `db:"bytes_saved"`

	// PercentSaved - процент экономии от исходного размера.
	PercentSaved float64 `db:"percent_saved"`

	// Timestamp - время записи (unix timestamp).
	Timestamp int64 `db:"timestamp"`

	// Status - итоговый статус (processed, failed, deleted).
	Status Status `db:"status"`

	// DominantType - преобладающий исходный формат (JPG, PNG, Mixed, N/A).
	DominantType string `db:"dominant_image_type"`

	// Effort - уровень усилия cjxl, использованный при обработке.
	Effort int `db:"effort"`

	// DurationSeconds - длительность обработки архива.
	DurationSeconds float64 `db:"duration_seconds"`

	// ImageCount - общее число распознанных изображений.
	ImageCount int `db:"image_count"`

	// JPGCount - число JPEG членов.
	JPGCount int `db:"jpg_count"`

	// PNGCount - число PNG членов.
	PNGCount int `db:"png_count"`

	// ToolVersion - версии внешних инструментов на момент обработки.
	ToolVersion string `db:"tool_version"`

	// ErrorMessage - текст ошибки (nullable).
	ErrorMessage *string `db:"error_message"`
}

// FailedRecord представляет запись в таблице ошибок.
type FailedRecord struct {
	// Path - путь архива относительно корня сканирования (первичный ключ).
	Path string `db:"path"`

	// Error - текст ошибки.
	Error string `db:"error"`

	// DurationSeconds - сколько длилась обработка до ошибки.
	DurationSeconds float64 `db:"duration_seconds"`

	// Timestamp - время записи (unix timestamp).
	Timestamp int64 `db:"timestamp"`
}

// Stats содержит агрегаты по БД для команды stats.
type Stats struct {
	// Total - всего записей.
	Total int64

	// Processed - успешно обработано.
	Processed int64

	// Failed - записей со статусом failed.
	Failed int64

	// Deleted - удалённых архивов.
	Deleted int64

	// BytesSaved - суммарно сэкономлено байт.
	BytesSaved int64

	// PendingFailures - записей в таблице ошибок.
	PendingFailures int64
}

/*
Возможные расширения:
- Добавить поле с числом конвертированных членов (сейчас только счётчики форматов)
- Добавить таблицу истории для анализа повторных прогонов
*/
