// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"sort"
	"strings"
)

// Preset определяет профиль кодирования.
type Preset string

const (
	// PresetQuick - быстрый проход: effort 3, для первичной оценки корпуса.
	PresetQuick Preset = "quick"
	// PresetBalanced - баланс скорости и сжатия: effort 7.
	PresetBalanced Preset = "balanced"
	// PresetArchive - максимальное сжатие для долгого хранения: effort 9.
	PresetArchive Preset = "archive"
)

// PresetConfig содержит настройки для пресета.
type PresetConfig struct {
	// Effort - уровень усилия cjxl (0-10).
	Effort int
	// Flatten - выравнивать вложенные директории.
	Flatten bool
}

// Presets содержит все доступные пресеты.
var Presets = map[Preset]PresetConfig{
	PresetQuick: {
		Effort:  3,
		Flatten: false,
	},
	PresetBalanced: {
		Effort:  7,
		Flatten: true,
	},
	PresetArchive: {
		Effort:  9,
		Flatten: true,
	},
}

// ApplyPreset применяет пресет к конфигурации.
// Явно заданные CLI флаги имеют приоритет, поэтому вызывается до их разбора.
func (c *Config) ApplyPreset(name string) error {
	p, ok := Presets[Preset(strings.ToLower(name))]
	if !ok {
		return fmt.Errorf("неизвестный пресет: %s (доступны: %s)", name, strings.Join(PresetNames(), ", "))
	}

	c.Effort = p.Effort
	c.NoFlatten = !p.Flatten
	return nil
}

// PresetNames возвращает отсортированный список имён пресетов.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for p := range Presets {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}
