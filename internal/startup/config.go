package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"media-cache/internal/logging"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML
// overlay.
const ConfigFileEnv = "MEDIA_CACHE_CONFIG"

// Defaults applied when neither the environment nor the config file sets a value.
const (
	DefaultScanInterval           = 30 * time.Minute
	DefaultAnalysisInterval       = time.Second
	DefaultImageCacheBudget int64 = 1 << 30
	DefaultPipelineBudget   int64 = 128 << 20
	DefaultThumbnailEntries       = 512
	DefaultThumbnailSize          = 256
)

// Config holds all application configuration
type Config struct {
	LibraryDir  string
	CacheDir    string
	DatabaseDir string
	Port        string

	ScanInterval     time.Duration
	AnalysisInterval time.Duration

	// ImageCacheBudget bounds the on-disk image cache in bytes.
	ImageCacheBudget int64
	// PipelineMemoryBudget bounds decoded images held by the pipeline.
	PipelineMemoryBudget int64
	// ThumbnailMemoryEntries bounds the coordinator's thumbnail byte cache.
	ThumbnailMemoryEntries int
	// ThumbnailSize is the edge length of thumbnails served over HTTP.
	ThumbnailSize int
	DisplayScale  float64

	MetricsEnabled  bool
	LogHealthChecks bool
	LogLevel        string

	// Derived paths
	DatabasePath  string
	VaultDir      string
	ImageCacheDir string
}

// fileConfig mirrors Config for YAML decoding. Durations and byte sizes are
// strings so "30m" and "512MiB" read naturally; pointers tell absent keys
// from zero values.
type fileConfig struct {
	LibraryDir             *string  `yaml:"library_dir"`
	CacheDir               *string  `yaml:"cache_dir"`
	DatabaseDir            *string  `yaml:"database_dir"`
	Port                   *string  `yaml:"port"`
	ScanInterval           *string  `yaml:"scan_interval"`
	AnalysisInterval       *string  `yaml:"analysis_interval"`
	ImageCacheBudget       *string  `yaml:"image_cache_budget"`
	PipelineMemoryBudget   *string  `yaml:"pipeline_memory_budget"`
	ThumbnailMemoryEntries *int     `yaml:"thumbnail_memory_entries"`
	ThumbnailSize          *int     `yaml:"thumbnail_size"`
	DisplayScale           *float64 `yaml:"display_scale"`
	MetricsEnabled         *bool    `yaml:"metrics_enabled"`
	LogHealthChecks        *bool    `yaml:"log_health_checks"`
	LogLevel               *string  `yaml:"log_level"`
}

// LoadConfig prints the startup banner, resolves configuration from the
// environment and the optional YAML overlay, and prepares directories.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	config, err := Resolve()
	if err != nil {
		return nil, err
	}
	logConfig(config)

	if err := config.Prepare(); err != nil {
		return nil, err
	}
	return config, nil
}

// Resolve builds a Config from the environment, then overlays the file named
// by MEDIA_CACHE_CONFIG when set. It touches no directories.
func Resolve() (*Config, error) {
	config := fromEnv()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := config.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if config.LogLevel != "" {
		logging.SetLevel(logging.ParseLevel(config.LogLevel))
	}

	var err error
	for _, dir := range []*string{&config.LibraryDir, &config.CacheDir, &config.DatabaseDir} {
		if *dir, err = filepath.Abs(*dir); err != nil {
			return nil, fmt.Errorf("failed to resolve directory path %q: %w", *dir, err)
		}
	}

	config.DatabasePath = filepath.Join(config.DatabaseDir, "media.db")
	config.VaultDir = filepath.Join(config.CacheDir, "vault")
	config.ImageCacheDir = filepath.Join(config.CacheDir, "images")
	return config, nil
}

func fromEnv() *Config {
	return &Config{
		LibraryDir:             getEnv("LIBRARY_DIR", "/media"),
		CacheDir:               getEnv("CACHE_DIR", "/cache"),
		DatabaseDir:            getEnv("DATABASE_DIR", "/database"),
		Port:                   getEnv("PORT", "8080"),
		ScanInterval:           getEnvDuration("SCAN_INTERVAL", DefaultScanInterval),
		AnalysisInterval:       getEnvDuration("ANALYSIS_INTERVAL", DefaultAnalysisInterval),
		ImageCacheBudget:       getEnvBytes("IMAGE_CACHE_BUDGET", DefaultImageCacheBudget),
		PipelineMemoryBudget:   getEnvBytes("PIPELINE_MEMORY_BUDGET", DefaultPipelineBudget),
		ThumbnailMemoryEntries: getEnvInt("THUMBNAIL_MEMORY_ENTRIES", DefaultThumbnailEntries),
		ThumbnailSize:          getEnvInt("THUMBNAIL_SIZE", DefaultThumbnailSize),
		DisplayScale:           getEnvFloat("DISPLAY_SCALE", 1),
		MetricsEnabled:         getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks:        getEnvBool("LOG_HEALTH_CHECKS", true),
		LogLevel:               os.Getenv("LOG_LEVEL"),
	}
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.LibraryDir, f.LibraryDir)
	setString(&c.CacheDir, f.CacheDir)
	setString(&c.DatabaseDir, f.DatabaseDir)
	setString(&c.Port, f.Port)
	setString(&c.LogLevel, f.LogLevel)

	if f.ScanInterval != nil {
		if c.ScanInterval, err = parseDuration(*f.ScanInterval); err != nil {
			return fmt.Errorf("scan_interval: %w", err)
		}
	}
	if f.AnalysisInterval != nil {
		if c.AnalysisInterval, err = parseDuration(*f.AnalysisInterval); err != nil {
			return fmt.Errorf("analysis_interval: %w", err)
		}
	}
	if f.ImageCacheBudget != nil {
		if c.ImageCacheBudget, err = parseBytes(*f.ImageCacheBudget); err != nil {
			return fmt.Errorf("image_cache_budget: %w", err)
		}
	}
	if f.PipelineMemoryBudget != nil {
		if c.PipelineMemoryBudget, err = parseBytes(*f.PipelineMemoryBudget); err != nil {
			return fmt.Errorf("pipeline_memory_budget: %w", err)
		}
	}
	if f.ThumbnailMemoryEntries != nil {
		c.ThumbnailMemoryEntries = *f.ThumbnailMemoryEntries
	}
	if f.ThumbnailSize != nil {
		c.ThumbnailSize = *f.ThumbnailSize
	}
	if f.DisplayScale != nil {
		if *f.DisplayScale <= 0 {
			return fmt.Errorf("display_scale must be positive, got %v", *f.DisplayScale)
		}
		c.DisplayScale = *f.DisplayScale
	}
	if f.MetricsEnabled != nil {
		c.MetricsEnabled = *f.MetricsEnabled
	}
	if f.LogHealthChecks != nil {
		c.LogHealthChecks = *f.LogHealthChecks
	}

	logging.Info("  Loaded config overlay: %s", path)
	return nil
}

// Prepare creates the cache and database directories. The database directory
// must be writable; a missing library directory only warns.
func (c *Config) Prepare() error {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(c.LibraryDir, "library"); err != nil {
		logging.Warn("  Library directory issue: %v", err)
	}

	if err := ensureDirectory(c.DatabaseDir, "database"); err != nil {
		return fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(c.DatabaseDir); err != nil {
		return fmt.Errorf("database directory is not writable: %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	for _, dir := range []struct{ path, name string }{
		{c.VaultDir, "vault"},
		{c.ImageCacheDir, "image cache"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		if err := testWriteAccess(dir.path); err != nil {
			return fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory ready: %s", dir.name, dir.path)
	}
	return nil
}

func logConfig(c *Config) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  LIBRARY_DIR:              %s", c.LibraryDir)
	logging.Info("  CACHE_DIR:                %s", c.CacheDir)
	logging.Info("  DATABASE_DIR:             %s", c.DatabaseDir)
	logging.Info("  PORT:                     %s", c.Port)
	logging.Info("  METRICS_ENABLED:          %v", c.MetricsEnabled)
	logging.Info("  SCAN_INTERVAL:            %v", c.ScanInterval)
	logging.Info("  ANALYSIS_INTERVAL:        %v", c.AnalysisInterval)
	logging.Info("  IMAGE_CACHE_BUDGET:       %s", humanize.IBytes(uint64(c.ImageCacheBudget)))
	logging.Info("  PIPELINE_MEMORY_BUDGET:   %s", humanize.IBytes(uint64(c.PipelineMemoryBudget)))
	logging.Info("  THUMBNAIL_MEMORY_ENTRIES: %d", c.ThumbnailMemoryEntries)
	logging.Info("  THUMBNAIL_SIZE:           %d", c.ThumbnailSize)
	logging.Info("  DISPLAY_SCALE:            %.2f", c.DisplayScale)
	logging.Info("  LOG_HEALTH_CHECKS:        %v", c.LogHealthChecks)
	logging.Info("  LOG_LEVEL:                %s", logging.GetLevel())
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

func parseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > 1<<62 {
		return 0, fmt.Errorf("byte size out of range: %s", s)
	}
	return int64(n), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := parseDuration(value)
	if err != nil {
		logging.Warn("Invalid %s %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvBytes(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := parseBytes(value)
	if err != nil {
		logging.Warn("Invalid %s %q, using default: %s", key, value, humanize.IBytes(uint64(defaultValue)))
		return defaultValue
	}
	return parsed
}
