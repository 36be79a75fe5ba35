// Package pipeline содержит оркестратор обработки архивов.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/artemshloyda/cbzxl/internal/archive"
	"github.com/artemshloyda/cbzxl/internal/classify"
	"github.com/artemshloyda/cbzxl/internal/config"
	"github.com/artemshloyda/cbzxl/internal/encoder"
	"github.com/artemshloyda/cbzxl/internal/flatten"
	"github.com/artemshloyda/cbzxl/internal/logging"
	"github.com/artemshloyda/cbzxl/internal/progress"
	"github.com/artemshloyda/cbzxl/internal/scanner"
	"github.com/artemshloyda/cbzxl/internal/storage"
)

// ImageEncoder кодирует один файл в целевой формат.
// Интерфейс позволяет подменить внешний cjxl в тестах.
type ImageEncoder interface {
	Encode(ctx context.Context, path string) encoder.Result
}

// Options содержит зависимости оркестратора.
type Options struct {
	// Config - конфигурация прогона.
	Config *config.Config

	// Store - хранилище состояния.
	Store *storage.Store

	// Sniff - определение MIME типа по содержимому.
	Sniff classify.SniffFunc

	// Encoder - кодировщик изображений.
	Encoder ImageEncoder

	// Flattener - выравнивание вложенных директорий.
	Flattener *flatten.Flattener

	// Logger - логгер.
	Logger *logging.Logger

	// Bar - прогресс-бар (опционально).
	Bar *progress.Bar

	// ToolVersion - версии внешних инструментов для записи в БД.
	ToolVersion string
}

// Orchestrator последовательно проводит каждый архив через конвейер:
// распаковка, классификация, конвертация, выравнивание, пересборка, запись итога.
// Параллелизм существует только внутри архива: пул воркеров кодирует
// изображения, оркестратор один читает канал результатов и суммирует дельты.
type Orchestrator struct {
	cfg         *config.Config
	store       *storage.Store
	sniff       classify.SniffFunc
	enc         ImageEncoder
	flattener   *flatten.Flattener
	log         *logging.Logger
	bar         *progress.Bar
	toolVersion string
}

// New создаёт новый Orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		cfg:         opts.Config,
		store:       opts.Store,
		sniff:       opts.Sniff,
		enc:         opts.Encoder,
		flattener:   opts.Flattener,
		log:         opts.Logger,
		bar:         opts.Bar,
		toolVersion: opts.ToolVersion,
	}
}

// Run обрабатывает список архивов и возвращает агрегаты прогона.
// Отмена контекста прерывает прогон между архивами; уже собранные
// агрегаты возвращаются.
func (o *Orchestrator) Run(ctx context.Context, archives []scanner.Archive) (*RunStats, error) {
	stats := &RunStats{Found: int64(len(archives))}

	archives, err := o.selectArchives(archives)
	if err != nil {
		return stats, err
	}
	stats.Found = int64(len(archives))

	// Множество пропуска: булево присутствие успешной записи,
	// время модификации файла не учитывается
	var processed map[string]bool
	if !o.cfg.RecheckAll && !o.cfg.ReprocessFailed {
		processed, err = o.store.ProcessedPaths()
		if err != nil {
			return stats, err
		}
	}

	for _, a := range archives {
		select {
		case <-ctx.Done():
			o.log.Warnf("Прогон прерван: %v", ctx.Err())
			return stats, ctx.Err()
		default:
		}

		if processed[a.RelPath] {
			stats.Skipped++
			if o.cfg.Verbose {
				o.log.Printf("Пропущен (уже обработан): %s", a.RelPath)
			}
			o.advance()
			continue
		}

		o.ProcessArchive(ctx, a, stats)
		o.advance()
	}

	return stats, nil
}

// selectArchives сужает список до архивов из таблицы ошибок
// в режиме --reprocess-failed.
func (o *Orchestrator) selectArchives(archives []scanner.Archive) ([]scanner.Archive, error) {
	if !o.cfg.ReprocessFailed {
		return archives, nil
	}

	failed, err := o.store.FailedPaths()
	if err != nil {
		return nil, err
	}

	failedSet := make(map[string]bool, len(failed))
	for _, p := range failed {
		failedSet[p] = true
	}

	var selected []scanner.Archive
	for _, a := range archives {
		if !failedSet[a.RelPath] {
			continue
		}
		// Путь убирается из таблицы ошибок; повторная ошибка вернёт его
		if !o.cfg.DryRun {
			if err := o.store.RemoveFailed(a.RelPath); err != nil {
				return nil, err
			}
		}
		selected = append(selected, a)
	}

	return selected, nil
}

// ProcessArchive проводит один архив через весь конвейер.
// Любая ошибка фиксируется в БД, прогон по остальным архивам продолжается.
func (o *Orchestrator) ProcessArchive(ctx context.Context, a scanner.Archive, stats *RunStats) {
	start := time.Now()

	err := func() (err error) {
		// Паника на отдельном архиве не валит весь прогон
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("внутренняя ошибка: %v", r)
			}
		}()
		return o.processOne(ctx, a, stats, start)
	}()
	if err == nil {
		return
	}

	// Отмена прогона не считается ошибкой архива
	if errors.Is(err, context.Canceled) {
		return
	}

	stats.Failed++
	o.log.Errorf("Ошибка обработки %s: %v", a.RelPath, err)

	if !o.cfg.DryRun {
		if dbErr := o.store.UpsertFailed(a.RelPath, time.Since(start), err.Error()); dbErr != nil {
			o.log.Errorf("Не удалось записать ошибку в БД: %v", dbErr)
		}
	}
}

// processOne выполняет стадии конвейера для одного архива.
func (o *Orchestrator) processOne(ctx context.Context, a scanner.Archive, stats *RunStats, start time.Time) error {
	workDir, err := os.MkdirTemp("", "cbzxl-*")
	if err != nil {
		return fmt.Errorf("не удалось создать рабочую директорию: %w", err)
	}
	// Рабочее дерево удаляется на любом исходе
	defer func() { _ = os.RemoveAll(workDir) }()

	if err := archive.Extract(a.Path, workDir); err != nil {
		return err
	}

	leftovers := cleanLeftovers(workDir)
	if leftovers > 0 {
		o.log.Warnf("%s: удалено незавершённых файлов от прерванного запуска: %d", a.RelPath, leftovers)
	}

	// Классификация с исправлением расширений.
	// Счётчик переименований решает, нужна ли пересборка без конвертации.
	var renames int
	rename := func(oldPath, newPath string) error {
		if !o.cfg.DryRun {
			if err := os.Rename(oldPath, newPath); err != nil {
				return err
			}
		}
		renames++
		return nil
	}
	cl := classify.New(o.sniff, rename, o.log, o.cfg.Verbose)

	members, summary, err := cl.ClassifyTree(ctx, workDir)
	if err != nil {
		return err
	}

	outcome, done := summary.PreEncodeOutcome(!o.cfg.NoConvert)

	if done && outcome == classify.OutcomeNoImagesRecognized && o.cfg.DeleteEmptyArchives {
		return o.deleteEmpty(a, stats, start)
	}

	mutated := leftovers > 0 || renames > 0

	var saved int64
	if !done {
		var converted, failedImages int
		saved, converted, failedImages = o.convertMembers(ctx, members)
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.ImagesConverted += int64(converted)
		if converted > 0 {
			mutated = true
		}
		if failedImages > 0 {
			o.log.Warnf("%s: не сконвертировано изображений: %d", a.RelPath, failedImages)
		}
	}

	if outcome == classify.OutcomeOtherFormatsOnly {
		o.log.Printf("ℹ️ %s: только другие форматы изображений (%s)", a.RelPath, summary.MajorityOtherExt())
	}

	flattened, err := o.flattenTree(workDir)
	if err != nil {
		return err
	}
	if flattened {
		stats.Flattened++
		mutated = true
	}

	// Пересборка только когда дерево изменилось
	finalSize := a.Size
	if mutated && !o.cfg.DryRun {
		if o.cfg.Backup {
			if _, err := archive.Backup(a.Path); err != nil {
				return err
			}
		}
		if err := archive.Repack(workDir, a.Path); err != nil {
			return err
		}
		if info, err := os.Stat(a.Path); err == nil {
			finalSize = info.Size()
		}
	} else if o.cfg.DryRun {
		// Симуляция оценивает дельту суммой по изображениям
		finalSize = a.Size - saved
	}

	bytesSaved := a.Size - finalSize
	if !done {
		outcome = classify.FinalOutcome(bytesSaved)
	}

	percent := 0.0
	if a.Size > 0 {
		percent = float64(bytesSaved) / float64(a.Size) * 100
	}

	rec := storage.Record{
		Path:            a.RelPath,
		OriginalSize:    a.Size,
		FinalSize:       finalSize,
		BytesSaved:      bytesSaved,
		PercentSaved:    percent,
		Status:          storage.StatusProcessed,
		DominantType:    summary.DominantType(),
		Effort:          o.cfg.Effort,
		DurationSeconds: time.Since(start).Seconds(),
		ImageCount:      summary.ImageCount(),
		JPGCount:        summary.JPEGCount,
		PNGCount:        summary.PNGCount,
		ToolVersion:     o.toolVersion,
	}
	if !o.cfg.DryRun {
		if err := o.store.UpsertProcessed(rec); err != nil {
			return err
		}
	}

	stats.Processed++
	stats.BytesSaved += bytesSaved

	if !o.cfg.Quiet {
		o.log.Printf("✅ %s: %s, %s (%.1f%%), %s",
			a.RelPath, outcome, FormatBytes(bytesSaved), percent, time.Since(start).Round(time.Millisecond))
	}

	return nil
}

// deleteEmpty удаляет архив без распознанных изображений
// и фиксирует это в БД со статусом deleted.
func (o *Orchestrator) deleteEmpty(a scanner.Archive, stats *RunStats, start time.Time) error {
	if !o.cfg.DryRun {
		if err := os.Remove(a.Path); err != nil {
			return fmt.Errorf("не удалось удалить пустой архив: %w", err)
		}

		rec := storage.Record{
			Path:            a.RelPath,
			OriginalSize:    a.Size,
			FinalSize:       0,
			BytesSaved:      a.Size,
			PercentSaved:    100,
			Status:          storage.StatusDeleted,
			DominantType:    "N/A",
			Effort:          o.cfg.Effort,
			DurationSeconds: time.Since(start).Seconds(),
			ToolVersion:     o.toolVersion,
		}
		if err := o.store.UpsertProcessed(rec); err != nil {
			return err
		}
	}

	stats.Deleted++
	stats.BytesSaved += a.Size
	o.log.Printf("🗑️ Удалён пустой архив: %s (%s)", a.RelPath, FormatBytes(a.Size))

	return nil
}

// flattenTree выравнивает вложенные директории, если они есть.
func (o *Orchestrator) flattenTree(workDir string) (bool, error) {
	if o.cfg.NoFlatten {
		return false, nil
	}

	hasSub, err := flatten.HasSubdirectories(workDir)
	if err != nil || !hasSub {
		return false, err
	}

	if o.cfg.DryRun {
		o.log.Printf("Будут выровнены вложенные директории")
		return true, nil
	}

	return o.flattener.Flatten(workDir)
}

// convertMembers кодирует конвертируемые изображения пулом воркеров.
// Результаты читает и суммирует только оркестратор.
// Возвращает суммарную дельту, число сконвертированных и число ошибок.
func (o *Orchestrator) convertMembers(ctx context.Context, members []classify.Member) (int64, int, int) {
	var jobs []string
	for _, m := range members {
		if m.Bucket == classify.BucketConvertibleJPEG || m.Bucket == classify.BucketConvertiblePNG {
			jobs = append(jobs, m.Path)
		}
	}
	if len(jobs) == 0 {
		return 0, 0, 0
	}

	if o.cfg.DryRun {
		for _, p := range jobs {
			if o.cfg.Verbose {
				o.log.Printf("Будет сконвертировано: %s", filepath.Base(p))
			}
		}
		return 0, len(jobs), 0
	}

	workers := o.cfg.Threads
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan string)
	results := make(chan encoder.Result)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobCh {
				results <- o.enc.Encode(ctx, path)
			}
		}()
	}

	go func() {
		defer close(results)
		for _, p := range jobs {
			select {
			case <-ctx.Done():
				// Прекращаем выдачу заданий, воркеры дорабатывают текущие
				close(jobCh)
				wg.Wait()
				return
			case jobCh <- p:
			}
		}
		close(jobCh)
		wg.Wait()
	}()

	var saved int64
	var converted, failed int
	for res := range results {
		if res.Err != nil {
			failed++
			o.log.Warnf("Не удалось сконвертировать %s: %v", filepath.Base(res.SrcPath), res.Err)
			continue
		}
		if !res.Converted {
			continue
		}
		converted++
		saved += res.Saved
		if o.cfg.Verbose {
			retried := ""
			if res.Retried {
				retried = " (повтор без восстановления)"
			}
			o.log.Printf("%s → %s: %s%s",
				filepath.Base(res.SrcPath), filepath.Base(res.DstPath), FormatBytes(res.Saved), retried)
		}
	}

	return saved, converted, failed
}

// cleanLeftovers удаляет незавершённые выводы энкодера от прерванных запусков.
func cleanLeftovers(dir string) int {
	removed := 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), encoder.TmpSuffix) {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	return removed
}

// advance продвигает прогресс-бар, если он включён.
func (o *Orchestrator) advance() {
	if o.bar != nil {
		o.bar.Advance()
	}
}

/*
Возможные расширения:
- Параллельная обработка нескольких архивов с лимитом на суммарное число воркеров
- Оценка дельты в dry-run по статистике прошлых прогонов
*/
