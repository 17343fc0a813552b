package config

import (
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"ctsharness"
	"ctsharness/internal/config/tomlkeys"
	"ctsharness/internal/logging"
)

const DefaultsPath = "config/defaults.toml"

type Settings struct {
	Timeouts  TimeoutSettings
	Collector CollectorSettings
	Bulk      BulkSettings
	Log       LogSettings
}

type TimeoutSettings struct {
	CaptureResultMS int64
	CaptureImageMS  int64
	AvailabilityMS  int64
}

func (s TimeoutSettings) CaptureResult() time.Duration {
	return time.Duration(s.CaptureResultMS) * time.Millisecond
}

func (s TimeoutSettings) CaptureImage() time.Duration {
	return time.Duration(s.CaptureImageMS) * time.Millisecond
}

func (s TimeoutSettings) Availability() time.Duration {
	return time.Duration(s.AvailabilityMS) * time.Millisecond
}

type CollectorSettings struct {
	MaxReaderImages int64
	// ResultQueueCapacity of 0 leaves result queues unbounded.
	ResultQueueCapacity int64
}

type BulkSettings struct {
	MaxDurationMS int64
	ProgressEvery int64
	// Workers of 0 uses one worker per CPU.
	Workers      int64
	MinUnitCount int64
}

func (s BulkSettings) MaxDuration() time.Duration {
	return time.Duration(s.MaxDurationMS) * time.Millisecond
}

type LogSettings struct {
	Level      logging.Level
	BufferSize int64
}

// Load reads the embedded defaults, then the optional file at path, then
// overrides. Later sources win.
func Load(path string, overrides map[string]any) (Settings, error) {
	defaultsPayload, err := fs.ReadFile(ctsharness.EmbeddedConfigFS, DefaultsPath)
	if err != nil {
		return Settings{}, fmt.Errorf("read embedded defaults: %w", err)
	}
	return LoadSettings(path, defaultsPayload, overrides)
}

func LoadSettings(path string, defaultsPayload []byte, overrides map[string]any) (Settings, error) {
	defaultsStore, err := tomlkeys.Decode(defaultsPayload)
	if err != nil {
		return Settings{}, fmt.Errorf("decode defaults: %w", err)
	}
	defaults := defaultsStore.Flat()
	values := defaultsStore.Flat()

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, err
			}
		} else {
			store, err := tomlkeys.Decode(payload)
			if err != nil {
				return Settings{}, fmt.Errorf("decode %s: %w", path, err)
			}
			for key, value := range store.Flat() {
				values[key] = value
			}
		}
	}

	for key, value := range overrides {
		normalized := tomlkeys.NormalizeKey(key)
		if normalized == "" {
			continue
		}
		values[normalized] = value
	}

	settings := Settings{}
	settings.Timeouts.CaptureResultMS = intSetting(values, "timeouts.capture-result-ms", 0)
	settings.Timeouts.CaptureImageMS = intSetting(values, "timeouts.capture-image-ms", 0)
	settings.Timeouts.AvailabilityMS = intSetting(values, "timeouts.availability-ms", 0)
	settings.Collector.MaxReaderImages = intSetting(values, "collector.max-reader-images", 0)
	settings.Collector.ResultQueueCapacity = intSetting(values, "collector.result-queue-capacity", 0)
	settings.Bulk.MaxDurationMS = intSetting(values, "bulk.max-duration-ms", 0)
	settings.Bulk.ProgressEvery = intSetting(values, "bulk.progress-every", 0)
	settings.Bulk.Workers = intSetting(values, "bulk.workers", 0)
	settings.Bulk.MinUnitCount = intSetting(values, "bulk.min-unit-count", 0)
	settings.Log.BufferSize = intSetting(values, "log.buffer-size", 0)

	level := stringSetting(values, "log.level", "")
	if level != "" {
		parsed, ok := logging.ParseLevel(level)
		if !ok {
			return Settings{}, fmt.Errorf("log.level: unknown level %q", level)
		}
		settings.Log.Level = parsed
	}

	return normalizeSettings(settings, defaults), nil
}

func normalizeSettings(settings Settings, defaults map[string]any) Settings {
	positive := []struct {
		value *int64
		key   string
	}{
		{&settings.Timeouts.CaptureResultMS, "timeouts.capture-result-ms"},
		{&settings.Timeouts.CaptureImageMS, "timeouts.capture-image-ms"},
		{&settings.Timeouts.AvailabilityMS, "timeouts.availability-ms"},
		{&settings.Collector.MaxReaderImages, "collector.max-reader-images"},
		{&settings.Bulk.MaxDurationMS, "bulk.max-duration-ms"},
		{&settings.Bulk.ProgressEvery, "bulk.progress-every"},
		{&settings.Bulk.MinUnitCount, "bulk.min-unit-count"},
		{&settings.Log.BufferSize, "log.buffer-size"},
	}
	for _, setting := range positive {
		if *setting.value <= 0 {
			*setting.value = intSetting(defaults, setting.key, 0)
		}
	}
	if settings.Collector.ResultQueueCapacity < 0 {
		settings.Collector.ResultQueueCapacity = 0
	}
	if settings.Bulk.Workers < 0 {
		settings.Bulk.Workers = 0
	}
	if settings.Log.Level == "" {
		settings.Log.Level = logging.LevelInfo
	}
	return settings
}

func intSetting(values map[string]any, key string, fallback int64) int64 {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := tomlkeys.AsInt64(value); ok {
		return parsed
	}
	return fallback
}

func stringSetting(values map[string]any, key string, fallback string) string {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(string); ok {
		return strings.TrimSpace(parsed)
	}
	return fallback
}
