package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/kebairia/dirbak/internal/archive"
	"github.com/kebairia/dirbak/internal/exclusion"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// EnvPrefix prefixes environment overrides, e.g. DIRBAK_COMPRESSION_LEVEL.
const EnvPrefix = "DIRBAK"

// Config represents the top-level YAML configuration file.
type Config struct {
	Include     []string          `mapstructure:"include"     yaml:"include,omitempty"`
	Paths       PathsConfig       `mapstructure:"paths"       yaml:"paths"`
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Exclusion   ExclusionConfig   `mapstructure:"exclusion"   yaml:"exclusion"`
	Retention   RetentionConfig   `mapstructure:"retention"   yaml:"retention"`
	Log         LogConfig         `mapstructure:"log"         yaml:"log"`
}

// PathsConfig holds the default source and the archive directory. The
// index file lives in Destination.
type PathsConfig struct {
	Source      string `mapstructure:"source"      yaml:"source"`
	Destination string `mapstructure:"destination" yaml:"destination"`
}

// CompressionConfig holds the default container format and level.
type CompressionConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Level  int    `mapstructure:"level"  yaml:"level"`
}

// ExclusionConfig controls which patterns are merged into the filter.
type ExclusionConfig struct {
	UseDefaults bool     `mapstructure:"use_defaults" yaml:"use_defaults"`
	Custom      []string `mapstructure:"custom"       yaml:"custom"`
}

// RetentionConfig specifies the cleanup limits. Zero disables a limit.
type RetentionConfig struct {
	MaxBackupsPerDirectory int     `mapstructure:"max_backups_per_directory" yaml:"max_backups_per_directory"`
	DaysToKeep             int     `mapstructure:"days_to_keep"              yaml:"days_to_keep"`
	MaxTotalSizeGB         float64 `mapstructure:"max_total_size_gb"         yaml:"max_total_size_gb"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"       yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			Source:      "~",
			Destination: filepath.Join(xdg.DataHome, "dirbak", "archives"),
		},
		Compression: CompressionConfig{Format: string(archive.FormatTar), Level: archive.DefaultLevel},
		Exclusion:   ExclusionConfig{UseDefaults: true, Custom: []string{}},
		Retention: RetentionConfig{
			MaxBackupsPerDirectory: 5,
			DaysToKeep:             30,
			MaxTotalSizeGB:         50,
		},
		Log: LogConfig{Level: "info", Development: true},
	}
}

// DefaultPath is the config file looked up when none is given on the
// command line.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "dirbak", "config.yaml")
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("include", []string{})
	v.SetDefault("paths.source", d.Paths.Source)
	v.SetDefault("paths.destination", d.Paths.Destination)
	v.SetDefault("compression.format", d.Compression.Format)
	v.SetDefault("compression.level", d.Compression.Level)
	v.SetDefault("exclusion.use_defaults", d.Exclusion.UseDefaults)
	v.SetDefault("exclusion.custom", d.Exclusion.Custom)
	v.SetDefault("retention.max_backups_per_directory", d.Retention.MaxBackupsPerDirectory)
	v.SetDefault("retention.days_to_keep", d.Retention.DaysToKeep)
	v.SetDefault("retention.max_total_size_gb", d.Retention.MaxTotalSizeGB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// Load reads the configuration from the given YAML file using Viper,
// merges any included files, applies DIRBAK_* environment overrides and
// unmarshals into the Config struct. An empty path loads the defaults
// only. Relative include paths are resolved against the base file.
func (c *Config) Load(path string) error {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		// Read base configuration
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
		}

		// Merge include files (if any)
		for _, inc := range v.GetStringSlice("include") {
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(filepath.Dir(path), inc)
			}
			data, err := os.ReadFile(inc)
			if err != nil {
				return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
			}
			if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
				return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
			}
		}
	}

	// Unmarshal into the Config struct
	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	var err error
	if c.Paths.Source, err = ExpandHome(c.Paths.Source); err != nil {
		return fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	if c.Paths.Destination, err = ExpandHome(c.Paths.Destination); err != nil {
		return fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	return nil
}

// Validate checks the loaded values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Paths.Destination) == "" {
		return fmt.Errorf("%w: paths.destination is empty", ErrValidateConfig)
	}
	if _, err := archive.ParseFormat(c.Compression.Format); err != nil {
		return fmt.Errorf("%w: compression.format: %v", ErrValidateConfig, err)
	}
	if c.Compression.Level < 0 || c.Compression.Level > archive.MaxLevel {
		return fmt.Errorf("%w: compression.level %d out of range 0-%d", ErrValidateConfig, c.Compression.Level, archive.MaxLevel)
	}
	if c.Retention.MaxBackupsPerDirectory < 0 {
		return fmt.Errorf("%w: retention.max_backups_per_directory must not be negative", ErrValidateConfig)
	}
	if c.Retention.DaysToKeep < 0 {
		return fmt.Errorf("%w: retention.days_to_keep must not be negative", ErrValidateConfig)
	}
	if c.Retention.MaxTotalSizeGB < 0 {
		return fmt.Errorf("%w: retention.max_total_size_gb must not be negative", ErrValidateConfig)
	}
	if _, err := exclusion.New(c.Exclusion.Custom); err != nil {
		return fmt.Errorf("%w: exclusion.custom: %v", ErrValidateConfig, err)
	}
	return nil
}

// Format returns the configured archive format.
func (c Config) Format() archive.Format {
	f, err := archive.ParseFormat(c.Compression.Format)
	if err != nil {
		return archive.FormatTar
	}
	return f
}

// ExclusionLists returns the pattern lists to merge into a filter, the
// built-in set first when enabled.
func (c Config) ExclusionLists() [][]string {
	var lists [][]string
	if c.Exclusion.UseDefaults {
		lists = append(lists, exclusion.DefaultPatterns)
	}
	return append(lists, c.Exclusion.Custom)
}

// MaxTotalBytes converts max_total_size_gb to bytes.
func (c Config) MaxTotalBytes() int64 {
	return int64(c.Retention.MaxTotalSizeGB * (1 << 30))
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
