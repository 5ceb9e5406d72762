// =============================================================================
// EDI Ingest - Configuration Module
// =============================================================================
//
// This module is responsible for loading and managing all configuration:
//
//   1. Main Config (config.yaml + EDI_* environment variables): global
//      application settings such as directories, database and logging.
//   2. Mapping Configs (configs/*.yaml): one per EDI document type, declaring
//      target tables, field derivations and validation rules.
//   3. Fixed-width Schemas: positional layouts referenced by mapping configs,
//      authored as YAML or as XLSX workbooks.
//
// Mapping configs and schemas are cached per document type and partner and
// are only re-read on an explicit Reload.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override config
// file values. Nested keys use a double underscore: EDI_DATABASE__DSN.
const EnvPrefix = "EDI_"

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for EDI files to process.
	// Default: "./input"
	InputDir string `koanf:"input_dir"`

	// OutputDir receives dry-run renderings, error logs and run summaries.
	// Default: "./output"
	OutputDir string `koanf:"output_dir"`

	// InputArchiveDir receives input files after successful processing.
	// Default: "./input_archive"
	InputArchiveDir string `koanf:"input_archive_dir"`

	// ConfigsDir holds mapping configs and the schemas they reference.
	// Default: "./configs"
	ConfigsDir string `koanf:"configs_dir"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is an optional extra log destination next to stdout.
	LogFile string `koanf:"log_file"`

	// LogLevel is one of "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `koanf:"log_level"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// OutputFileFormat names dry-run output files. Placeholders: {type},
	// {partner}, {timestamp}, {uuid}.
	// Default: "{type}_{timestamp}_{uuid}"
	OutputFileFormat string `koanf:"output_file_format"`

	// MaxConcurrency bounds the number of documents processed at once.
	// Default: 4
	MaxConcurrency int `koanf:"max_concurrency"`

	// ContinueOnError keeps processing the remaining files after a failure.
	// Default: true
	ContinueOnError bool `koanf:"continue_on_error"`

	// DefaultPartner is used when a document arrives without a partner id.
	DefaultPartner string `koanf:"default_partner"`

	Database   DatabaseConfig   `koanf:"database"`
	Tracing    TracingConfig    `koanf:"tracing"`
	FixedWidth FixedWidthConfig `koanf:"fixed_width"`
}

// DatabaseConfig selects the database used for reference lookups and for
// persisting mapped records.
type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`

	// LookupTimeout bounds every reference-data query.
	LookupTimeout time.Duration `koanf:"lookup_timeout"`
}

// TracingConfig toggles OpenTelemetry spans written to stdout.
type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// FixedWidthConfig overrides the fixed-width line markers.
type FixedWidthConfig struct {
	HeaderMarker  string `koanf:"header_marker"`
	TrailerMarker string `koanf:"trailer_marker"`
}

// =============================================================================
// LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration.
//
// PARAMETERS:
//   - configPath: path to the YAML config file. A missing file is not an
//     error; defaults and environment variables still apply.
//
// RETURNS:
//   - the merged configuration (file, then EDI_* env vars, then defaults)
//   - an error if the file cannot be parsed or the directories cannot be created
func LoadMainConfig(configPath string) (*MainConfig, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	applyMainConfigDefaults(k)

	var config MainConfig
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset options.
func applyMainConfigDefaults(k *koanf.Koanf) {
	defaults := map[string]interface{}{
		"input_dir":               "./input",
		"output_dir":              "./output",
		"input_archive_dir":       "./input_archive",
		"configs_dir":             "./configs",
		"log_level":               "info",
		"output_file_format":      "{type}_{timestamp}_{uuid}",
		"max_concurrency":         4,
		"continue_on_error":       true,
		"database.driver":         "sqlite",
		"database.dsn":            "file:edi-ingest.db",
		"database.lookup_timeout": "5s",
		"tracing.service_name":    "edi-ingest",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			_ = k.Set(key, value)
		}
	}
}

// validateMainConfig checks option ranges and creates missing directories.
func validateMainConfig(config *MainConfig) error {
	if config.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", config.MaxConcurrency)
	}
	if config.Database.LookupTimeout < 0 {
		return fmt.Errorf("database.lookup_timeout must not be negative")
	}

	dirs := []string{
		config.InputDir,
		config.OutputDir,
		config.InputArchiveDir,
		config.ConfigsDir,
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
