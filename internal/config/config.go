package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Default values for a compression run.
const (
	DefaultQuality   = 85
	DefaultMaxWidth  = 3000
	DefaultMaxHeight = 3000

	MinQuality = 1
	MaxQuality = 95
)

// Config represents the main configuration structure
type Config struct {
	InputDirectory      string        `mapstructure:"input_directory"`
	OutputDirectory     string        `mapstructure:"output_directory"`
	Quality             int           `mapstructure:"quality"`
	Optimize            bool          `mapstructure:"optimize"`
	MaxWidth            int           `mapstructure:"max_width"`
	MaxHeight           int           `mapstructure:"max_height"`
	SupportedExtensions []string      `mapstructure:"supported_extensions"`
	SortFiles           bool          `mapstructure:"sort_files"`
	ShowProgress        bool          `mapstructure:"show_progress"`
	Logging             LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		InputDirectory:  "images",
		OutputDirectory: "compressed",
		Quality:         DefaultQuality,
		Optimize:        true,
		MaxWidth:        DefaultMaxWidth,
		MaxHeight:       DefaultMaxHeight,
		SupportedExtensions: []string{
			".jpg", ".jpeg", ".png", ".webp", ".heic",
		},
		SortFiles:    true,
		ShowProgress: true,
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "photo-compressor.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables and
// validates it. An empty configPath searches the default locations; a
// missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	config, err := ReadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ReadConfig is LoadConfig without validation, for callers that apply
// their own overrides (command-line flags) before calling Validate.
func ReadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.photo-compressor")
		v.AddConfigPath("/etc/photo-compressor")
	}

	// Keys must be known to viper for AutomaticEnv to pick them up on Unmarshal.
	setDefaults(v, config)

	v.SetEnvPrefix("PHOTO_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("input_directory", c.InputDirectory)
	v.SetDefault("output_directory", c.OutputDirectory)
	v.SetDefault("quality", c.Quality)
	v.SetDefault("optimize", c.Optimize)
	v.SetDefault("max_width", c.MaxWidth)
	v.SetDefault("max_height", c.MaxHeight)
	v.SetDefault("supported_extensions", c.SupportedExtensions)
	v.SetDefault("sort_files", c.SortFiles)
	v.SetDefault("show_progress", c.ShowProgress)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Validate checks the configuration and normalizes extensions and paths.
// It does not require the input directory to exist: a missing input is
// reported by the run itself.
func (c *Config) Validate() error {
	if c.InputDirectory == "" {
		return fmt.Errorf("input_directory is required")
	}
	if c.OutputDirectory == "" {
		return fmt.Errorf("output_directory is required")
	}
	c.InputDirectory = expandPath(c.InputDirectory)
	c.OutputDirectory = expandPath(c.OutputDirectory)

	if c.Quality < MinQuality || c.Quality > MaxQuality {
		return fmt.Errorf("invalid quality: %d (valid: %d-%d)", c.Quality, MinQuality, MaxQuality)
	}

	if c.MaxWidth <= 0 || c.MaxHeight <= 0 {
		return fmt.Errorf("invalid bounding box: %dx%d", c.MaxWidth, c.MaxHeight)
	}

	c.SupportedExtensions = normalizeExtensions(c.SupportedExtensions)
	if len(c.SupportedExtensions) == 0 {
		return fmt.Errorf("supported_extensions must not be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// Helper functions

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[1:])
		}
	}
	return expanded
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return normalized
}
