// Package cli содержит CLI интерфейс приложения.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/cbzxl/internal/classify"
	"github.com/artemshloyda/cbzxl/internal/colorfix"
	"github.com/artemshloyda/cbzxl/internal/config"
	"github.com/artemshloyda/cbzxl/internal/encoder"
	"github.com/artemshloyda/cbzxl/internal/flatten"
	"github.com/artemshloyda/cbzxl/internal/logging"
	"github.com/artemshloyda/cbzxl/internal/pipeline"
	"github.com/artemshloyda/cbzxl/internal/progress"
	"github.com/artemshloyda/cbzxl/internal/scanner"
	"github.com/artemshloyda/cbzxl/internal/storage"
	"github.com/artemshloyda/cbzxl/internal/toolfinder"
	"github.com/artemshloyda/cbzxl/internal/watcher"
)

var (
	// Version будет установлена при сборке.
	Version = "dev"

	// BuildTime будет установлена при сборке.
	BuildTime = "unknown"
)

// cfg содержит глобальную конфигурацию.
var cfg = config.DefaultConfig()

// configFile - путь к файлу конфигурации (флаг --config).
var configFile string

// presetName - имя пресета (флаг --preset).
var presetName string

// NewRootCmd создаёт корневую команду CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cbzxl [директория]",
		Short: "Утилита для массовой конвертации CBZ архивов в JPEG XL",
		Long: `cbzxl - CLI утилита для массовой lossless конвертации изображений
внутри CBZ архивов в формат JPEG XL.

Каждый архив распаковывается, изображения конвертируются через cjxl,
вложенные директории выравниваются, архив атомарно пересобирается.
Итог каждого архива фиксируется в SQLite: повторный запуск
не обрабатывает уже конвертированные архивы.

Примеры:
  # Обработать текущую директорию
  cbzxl

  # Обработать коллекцию с 4 воркерами и effort 9
  cbzxl ~/comics --threads 4 --effort 9

  # Симуляция без изменения файлов и БД
  cbzxl ~/comics --dry-run

  # Только выравнивание директорий, без конвертации
  cbzxl ~/comics --no-convert

  # После основного прохода следить за новыми архивами
  cbzxl ~/comics --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: runProcess,
	}

	// Флаги
	flags := rootCmd.Flags()

	// Входные параметры
	flags.StringSliceVar(&cfg.ArchiveExtensions, "ext", cfg.ArchiveExtensions,
		"Расширения архивов через запятую (например: cbz,zip)")

	// Кодирование
	flags.IntVar(&cfg.Effort, "effort", cfg.Effort, "Уровень усилия cjxl (0-10, выше = медленнее/меньше)")
	flags.StringVar(&presetName, "preset", "", "Профиль кодирования: quick, balanced, archive")

	// Режим работы
	flags.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Симуляция без изменения файлов и БД")
	flags.BoolVar(&cfg.Backup, "backup", cfg.Backup, "Копировать архив рядом (.bak) перед изменением")
	flags.BoolVar(&cfg.NoConvert, "no-convert", cfg.NoConvert, "Не конвертировать изображения (только flatten)")
	flags.BoolVar(&cfg.NoFlatten, "no-flatten", cfg.NoFlatten, "Не выравнивать вложенные директории")
	flags.BoolVar(&cfg.DeleteEmptyArchives, "delete-empty-archives", cfg.DeleteEmptyArchives,
		"Удалять архивы без распознанных изображений")
	flags.BoolVar(&cfg.RecheckAll, "recheck-all", cfg.RecheckAll, "Игнорировать записи об успешной обработке")
	flags.BoolVar(&cfg.ReprocessFailed, "reprocess-failed", cfg.ReprocessFailed,
		"Обрабатывать только архивы из таблицы ошибок")
	flags.BoolVar(&cfg.ResetDB, "reset-db", cfg.ResetDB, "Очистить БД состояния перед запуском")
	flags.BoolVar(&cfg.Watch, "watch", cfg.Watch, "После основного прохода следить за новыми архивами")

	// Производительность
	flags.IntVar(&cfg.Threads, "threads", cfg.Threads, "Количество параллельных воркеров внутри архива")

	// Пути
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Путь к SQLite базе данных")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Путь к файлу лога")
	flags.StringVar(&cfg.CjxlPath, "cjxl-path", cfg.CjxlPath, "Путь к бинарнику cjxl")
	flags.StringVar(&cfg.MagickPath, "magick-path", cfg.MagickPath, "Путь к бинарнику magick")
	flags.StringVar(&cfg.FilePath, "file-path", cfg.FilePath, "Путь к бинарнику file")
	flags.StringVar(&configFile, "config", "", "Путь к файлу конфигурации YAML")

	// Вывод
	flags.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, "Подавить сообщения об отдельных архивах")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Подробный вывод")

	// Подкоманды
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// runProcess выполняет основной прогон по коллекции.
func runProcess(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	// Приоритет настроек: CLI флаги > пресет > файл конфигурации > умолчания.
	// Флаги уже разобраны, поэтому после применения файла и пресета
	// явно заданные значения восстанавливаются.
	cliValues := *cfg

	fc, cfgPath, err := config.FindAndLoadConfig(configFile)
	if err != nil {
		return err
	}
	if fc != nil {
		if err := fc.ApplyToConfig(cfg); err != nil {
			return err
		}
	}
	if presetName != "" {
		if err := cfg.ApplyPreset(presetName); err != nil {
			return err
		}
	}
	restoreChangedFlags(cmd, cfg, &cliValues)

	if len(args) > 0 {
		cfg.InputDir = args[0]
	}

	// Валидация конфигурации
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	// Создаём контекст с обработкой сигналов
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n⚠️  Получен сигнал завершения, останавливаем...")
		cancel()
	}()

	// Ищем внешние инструменты. Отсутствие - фатальная ошибка до начала работы
	finder := toolfinder.NewFinder(cfg.CjxlPath, cfg.MagickPath, cfg.FilePath)
	tools, err := finder.FindAll(!cfg.NoConvert)
	if err != nil {
		return err
	}
	fmt.Printf("📦 Инструменты: %s\n", tools.Fingerprint())

	// Логгер с дублированием в файл
	log, err := logging.New(cfg.LogFile, cfg.DryRun)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	// Инициализируем хранилище состояния
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("не удалось инициализировать БД: %w", err)
	}
	defer func() { _ = store.Close() }()

	if cfg.ResetDB {
		if cfg.DryRun {
			log.Printf("Будет очищена БД состояния")
		} else {
			if err := store.Reset(); err != nil {
				return err
			}
			log.Printf("🧹 БД состояния очищена")
		}
	}

	// Сканируем коллекцию
	scan := scanner.New(cfg)
	archives, err := scan.Scan()
	if err != nil {
		return err
	}

	// Выводим параметры
	fmt.Printf("🚀 Запуск обработки:\n")
	fmt.Printf("   Директория: %s\n", cfg.InputDir)
	fmt.Printf("   Найдено архивов: %d\n", len(archives))
	fmt.Printf("   Effort: %d, воркеров: %d\n", cfg.Effort, cfg.Threads)
	if cfgPath != "" {
		fmt.Printf("   Конфигурация: %s\n", cfgPath)
	}
	if cfg.DryRun {
		fmt.Println("   ⚠️  Dry-run режим (симуляция)")
	}
	fmt.Println()

	// Прогресс-бар; сообщения логгера идут через него, чтобы не рвать отрисовку
	bar := progress.New(progress.Options{
		Total:    int64(len(archives)),
		Disabled: cfg.Verbose || len(archives) == 0,
	})
	log.SetConsoleSink(bar.WriteMessage)

	// Конвейер
	sniff := classify.NewFileSniffer(tools.File.Path, cfg.ToolTimeout)
	var enc pipeline.ImageEncoder
	if !cfg.NoConvert {
		norm := colorfix.New(tools.Magick.Path, cfg.ToolTimeout, log)
		enc = encoder.New(tools.Cjxl.Path, cfg.Effort, cfg.EncodeTimeout, norm, sniff, log)
	}

	orch := pipeline.New(pipeline.Options{
		Config:      cfg,
		Store:       store,
		Sniff:       sniff,
		Encoder:     enc,
		Flattener:   flatten.New(log, cfg.Verbose),
		Logger:      log,
		Bar:         bar,
		ToolVersion: tools.Fingerprint(),
	})

	stats, runErr := orch.Run(ctx, archives)
	bar.Finish()
	log.SetConsoleSink(func(line string) { fmt.Println(line) })

	printSummary(stats, time.Since(startTime), cfg, log)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return nil
		}
		return runErr
	}

	// Режим слежения за новыми архивами
	if cfg.Watch {
		return runWatch(ctx, orch, stats, log)
	}

	return nil
}

// restoreChangedFlags возвращает значения явно заданных CLI флагов
// после применения файла конфигурации и пресета.
func restoreChangedFlags(cmd *cobra.Command, cfg, cli *config.Config) {
	f := cmd.Flags()

	if f.Changed("ext") {
		cfg.ArchiveExtensions = cli.ArchiveExtensions
	}
	if f.Changed("effort") {
		cfg.Effort = cli.Effort
	}
	if f.Changed("threads") {
		cfg.Threads = cli.Threads
	}
	if f.Changed("backup") {
		cfg.Backup = cli.Backup
	}
	if f.Changed("no-convert") {
		cfg.NoConvert = cli.NoConvert
	}
	if f.Changed("no-flatten") {
		cfg.NoFlatten = cli.NoFlatten
	}
	if f.Changed("delete-empty-archives") {
		cfg.DeleteEmptyArchives = cli.DeleteEmptyArchives
	}
	if f.Changed("db") {
		cfg.DBPath = cli.DBPath
	}
	if f.Changed("log-file") {
		cfg.LogFile = cli.LogFile
	}
	if f.Changed("cjxl-path") {
		cfg.CjxlPath = cli.CjxlPath
	}
	if f.Changed("magick-path") {
		cfg.MagickPath = cli.MagickPath
	}
	if f.Changed("file-path") {
		cfg.FilePath = cli.FilePath
	}
	if f.Changed("quiet") {
		cfg.Quiet = cli.Quiet
	}
	if f.Changed("verbose") {
		cfg.Verbose = cli.Verbose
	}
}

// printSummary выводит итоги прогона.
func printSummary(stats *pipeline.RunStats, duration time.Duration, cfg *config.Config, log *logging.Logger) {
	fmt.Println()
	fmt.Printf("📊 Результаты:\n")
	fmt.Printf("   Найдено архивов: %d\n", stats.Found)
	fmt.Printf("   Обработано: %d\n", stats.Processed)
	fmt.Printf("   Пропущено: %d\n", stats.Skipped)
	fmt.Printf("   Выровнено: %d\n", stats.Flattened)
	if stats.Deleted > 0 {
		fmt.Printf("   Удалено пустых: %d\n", stats.Deleted)
	}
	fmt.Printf("   Ошибок: %d\n", stats.Failed)
	fmt.Printf("   Изображений сконвертировано: %d\n", stats.ImagesConverted)
	if stats.BytesSaved >= 0 {
		fmt.Printf("   Сэкономлено: %s\n", pipeline.FormatBytes(stats.BytesSaved))
	} else {
		fmt.Printf("   Размер вырос на: %s\n", pipeline.FormatBytes(-stats.BytesSaved))
	}
	fmt.Printf("   Время: %s\n", duration.Round(time.Millisecond))
	if !cfg.DryRun && log.FilePath() != "" {
		fmt.Printf("   Лог: %s\n", log.FilePath())
	}
}

// runWatch следит за появлением новых архивов и обрабатывает их по одному.
func runWatch(ctx context.Context, orch *pipeline.Orchestrator, stats *pipeline.RunStats, log *logging.Logger) error {
	w, err := watcher.New(cfg)
	if err != nil {
		return err
	}

	archives, err := w.Watch(ctx)
	if err != nil {
		_ = w.Close()
		return err
	}

	log.Printf("👀 Слежение за %s (Ctrl+C для выхода)", cfg.InputDir)

	for a := range archives {
		log.Printf("Новый архив: %s", a.RelPath)
		orch.ProcessArchive(ctx, a, stats)
	}

	return nil
}

// newVersionCmd создаёт команду version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cbzxl %s (built %s)\n", Version, BuildTime)
		},
	}
}

// newStatsCmd создаёт команду stats.
func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [директория]",
		Short: "Показать статистику из базы данных",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			if dbPath == "" {
				dir := "."
				if len(args) > 0 {
					dir = args[0]
				}
				dbPath = filepath.Join(dir, ".cbzxl", "state.sqlite")
			}

			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("БД не найдена: %s", dbPath)
			}

			store, err := storage.New(dbPath)
			if err != nil {
				return fmt.Errorf("не удалось открыть БД: %w", err)
			}
			defer func() { _ = store.Close() }()

			st, err := store.GetStats()
			if err != nil {
				return err
			}

			fmt.Printf("📊 Статистика базы данных:\n")
			fmt.Printf("   Всего записей: %d\n", st.Total)
			fmt.Printf("   Обработано: %d\n", st.Processed)
			fmt.Printf("   Ошибок: %d\n", st.Failed)
			fmt.Printf("   Удалено пустых: %d\n", st.Deleted)
			fmt.Printf("   Ожидают повтора: %d\n", st.PendingFailures)
			fmt.Printf("   Сэкономлено: %s\n", pipeline.FormatBytes(st.BytesSaved))

			return nil
		},
	}

	cmd.Flags().String("db", "", "Путь к SQLite базе данных")

	return cmd
}

// newConfigCmd создаёт команду config с подкомандой init.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Работа с файлом конфигурации",
	}

	initCmd := &cobra.Command{
		Use:   "init [путь]",
		Short: "Создать пример файла конфигурации",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "cbzxl.yaml"
			if len(args) > 0 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("файл уже существует: %s", path)
			}

			if err := os.WriteFile(path, []byte(config.GenerateExampleConfig()), 0644); err != nil {
				return fmt.Errorf("не удалось записать %s: %w", path, err)
			}

			fmt.Printf("✅ Создан файл конфигурации: %s\n", path)
			return nil
		},
	}

	configCmd.AddCommand(initCmd)
	return configCmd
}

// Execute запускает CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// Не выводим ошибку, cobra уже вывела
		os.Exit(1)
	}
}

/*
Возможные расширения:
- Добавить команду export для выгрузки статистики в JSON
- Добавить команду retry как алиас --reprocess-failed
- Добавить флаг --exclude для пропуска поддиректорий
*/
