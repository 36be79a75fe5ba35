// Package storage содержит миграции SQLite базы данных.
package storage

// migrations содержит SQL-миграции в порядке выполнения.
var migrations = []string{
	// Миграция 1: Таблица успешных обработок.
	// Одна текущая запись на путь: запись всегда заменяется (upsert),
	// история не хранится.
	`CREATE TABLE IF NOT EXISTS converted_archives (
		path TEXT PRIMARY KEY,
		original_size INTEGER NOT NULL,
		final_size INTEGER NOT NULL,
		bytes_saved INTEGER NOT NULL,
		percent_saved REAL NOT NULL,
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		dominant_image_type TEXT NOT NULL,
		effort INTEGER NOT NULL,
		duration_seconds REAL NOT NULL,
		image_count INTEGER NOT NULL,
		jpg_count INTEGER NOT NULL,
		png_count INTEGER NOT NULL,
		tool_version TEXT NOT NULL,
		error_message TEXT
	);`,

	// Миграция 2: Независимая таблица ошибок.
	// Режим --reprocess-failed обрабатывает ровно эти пути.
	`CREATE TABLE IF NOT EXISTS failed_archives (
		path TEXT PRIMARY KEY,
		error TEXT NOT NULL,
		duration_seconds REAL NOT NULL,
		timestamp INTEGER NOT NULL
	);`,

	// Миграция 3: Индекс для выборки по статусу (команда stats).
	`CREATE INDEX IF NOT EXISTS ix_converted_status ON converted_archives (status);`,

	// Миграция 4: Таблица метаданных для версионирования схемы
	`CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,

	// Миграция 5: Запись версии схемы
	`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', '1');`,
}

// GetMigrations возвращает список SQL-миграций.
func GetMigrations() []string {
	return migrations
}
