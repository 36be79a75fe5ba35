// Package storage содержит логику работы с SQLite базой данных.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store предоставляет методы для работы с двумя наборами записей:
// успешные обработки и ошибки.
type Store struct {
	db *sql.DB
}

// New создаёт новое подключение к SQLite и выполняет миграции.
func New(dbPath string) (*Store, error) {
	// Создаём директорию для БД, если не существует
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для БД: %w", err)
	}

	// Открываем/создаём БД с параметрами для concurrent доступа:
	// отчётные утилиты могут читать БД во время прогона
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть БД: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	// SQLite не поддерживает concurrent writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	return s, nil
}

// migrate выполняет все SQL-миграции.
func (s *Store) migrate() error {
	for i, m := range GetMigrations() {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("миграция %d: %w", i+1, err)
		}
	}
	return nil
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertProcessed записывает (или заменяет) итог обработки архива.
// Запись по тому же пути полностью замещается: хранится только последний итог.
// Успешный итог также снимает путь с таблицы ошибок, чтобы последующий
// --reprocess-failed не повторял уже удавшийся архив.
func (s *Store) UpsertProcessed(r Record) error {
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().Unix()
	}

	query := `
		INSERT OR REPLACE INTO converted_archives
			(path, original_size, final_size, bytes_saved, percent_saved, timestamp,
			 status, dominant_image_type, effort, duration_seconds,
			 image_count, jpg_count, png_count, tool_version, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		r.Path, r.OriginalSize, r.FinalSize, r.BytesSaved, r.PercentSaved, r.Timestamp,
		r.Status, r.DominantType, r.Effort, r.DurationSeconds,
		r.ImageCount, r.JPGCount, r.PNGCount, r.ToolVersion, r.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("не удалось записать итог для %s: %w", r.Path, err)
	}

	if r.Status != StatusFailed {
		if _, err := s.db.Exec("DELETE FROM failed_archives WHERE path = ?", r.Path); err != nil {
			return fmt.Errorf("не удалось удалить %s из таблицы ошибок: %w", r.Path, err)
		}
	}

	return nil
}

// UpsertFailed записывает ошибку обработки архива: строку в таблицу ошибок
// и запись со статусом failed в основную таблицу.
func (s *Store) UpsertFailed(path string, duration time.Duration, errText string) error {
	now := time.Now().Unix()
	seconds := duration.Seconds()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO failed_archives (path, error, duration_seconds, timestamp)
		 VALUES (?, ?, ?, ?)`,
		path, errText, seconds, now,
	)
	if err != nil {
		return fmt.Errorf("не удалось записать ошибку для %s: %w", path, err)
	}

	return s.UpsertProcessed(Record{
		Path:            path,
		Status:          StatusFailed,
		DominantType:    "N/A",
		DurationSeconds: seconds,
		Timestamp:       now,
		ErrorMessage:    &errText,
	})
}

// ProcessedPaths возвращает множество путей со статусом processed.
// Используется для пропуска уже обработанных архивов: политика - булево
// присутствие записи, время модификации файла не учитывается.
func (s *Store) ProcessedPaths() (map[string]bool, error) {
	rows, err := s.db.Query(
		"SELECT path FROM converted_archives WHERE status = ?", StatusProcessed,
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать обработанные пути: %w", err)
	}
	defer func() { _ = rows.Close() }()

	paths := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("не удалось прочитать строку: %w", err)
		}
		paths[p] = true
	}

	return paths, rows.Err()
}

// FailedPaths возвращает пути из таблицы ошибок (для --reprocess-failed).
func (s *Store) FailedPaths() ([]string, error) {
	rows, err := s.db.Query("SELECT path FROM failed_archives ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать таблицу ошибок: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("не удалось прочитать строку: %w", err)
		}
		paths = append(paths, p)
	}

	return paths, rows.Err()
}

// RemoveFailed удаляет путь из таблицы ошибок перед повторной попыткой.
// Повторная ошибка добавит его обратно.
func (s *Store) RemoveFailed(path string) error {
	if _, err := s.db.Exec("DELETE FROM failed_archives WHERE path = ?", path); err != nil {
		return fmt.Errorf("не удалось удалить %s из таблицы ошибок: %w", path, err)
	}
	return nil
}

// Reset удаляет оба набора записей целиком (перезапуск корпуса с нуля).
func (s *Store) Reset() error {
	for _, table := range []string{"converted_archives", "failed_archives"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("не удалось очистить %s: %w", table, err)
		}
	}
	return nil
}

// GetStats возвращает агрегаты по БД для команды stats.
func (s *Store) GetStats() (*Stats, error) {
	st := &Stats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM converted_archives").Scan(&st.Total); err != nil {
		return nil, fmt.Errorf("не удалось получить статистику: %w", err)
	}
	_ = s.db.QueryRow("SELECT COUNT(*) FROM converted_archives WHERE status = ?", StatusProcessed).Scan(&st.Processed)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM converted_archives WHERE status = ?", StatusFailed).Scan(&st.Failed)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM converted_archives WHERE status = ?", StatusDeleted).Scan(&st.Deleted)
	_ = s.db.QueryRow("SELECT COALESCE(SUM(bytes_saved), 0) FROM converted_archives WHERE status != ?", StatusFailed).Scan(&st.BytesSaved)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM failed_archives").Scan(&st.PendingFailures)

	return st, nil
}

// GetRecord возвращает запись по пути (nil, если записи нет).
func (s *Store) GetRecord(path string) (*Record, error) {
	var r Record
	err := s.db.QueryRow(`
		SELECT path, original_size, final_size, bytes_saved, percent_saved, timestamp,
		       status, dominant_image_type, effort, duration_seconds,
		       image_count, jpg_count, png_count, tool_version, error_message
		FROM converted_archives WHERE path = ?`, path).
		Scan(&r.Path, &r.OriginalSize, &r.FinalSize, &r.BytesSaved, &r.PercentSaved, &r.Timestamp,
			&r.Status, &r.DominantType, &r.Effort, &r.DurationSeconds,
			&r.ImageCount, &r.JPGCount, &r.PNGCount, &r.ToolVersion, &r.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать запись %s: %w", path, err)
	}
	return &r, nil
}

/*
Возможные расширения:
- Добавить метод для экспорта статистики в JSON
- Добавить выборку топ-N архивов по экономии
*/
