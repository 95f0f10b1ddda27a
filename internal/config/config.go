// Package config provides Viper-based configuration loading for the level
// converter.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/levelport/internal/resource"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// ConversionConfig selects the generation pair and the rule sources.
type ConversionConfig struct {
	// Source and Target are generation names (ue1, ue2, ue3, ue4). Either may
	// be left empty and supplied on the command line instead.
	Source string `mapstructure:"source"`
	Target string `mapstructure:"target"`
	// Scale overrides the default world scale for the pair; 0 keeps it.
	Scale float64 `mapstructure:"scale"`
	// RulesDir holds YAML rule packs layered over the built-in rules.
	RulesDir string `mapstructure:"rules_dir"`
	// ScriptsDir holds Lua hooks visible to every pack.
	ScriptsDir string `mapstructure:"scripts_dir"`
	// InstructionLimit bounds each Lua hook call.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// OutputConfig controls how converted documents are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
	// Encoding is one of auto, utf8, utf16.
	Encoding  string `mapstructure:"encoding"`
	Extension string `mapstructure:"extension"`
	CRLF      bool   `mapstructure:"crlf"`
}

// ResourcesConfig controls binary asset export.
type ResourcesConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	PackageDirs []string `mapstructure:"package_dirs"`
	ExportDir   string   `mapstructure:"export_dir"`
	// Extractors maps a resource kind (texture, staticmesh, sound) to the
	// extractor binary for it.
	Extractors map[string]string `mapstructure:"extractors"`
}

// ExtractorsByKind returns Extractors keyed by resource kind.
//
// Postcondition: returns an error naming the first unknown kind.
func (r ResourcesConfig) ExtractorsByKind() (map[resource.Kind]string, error) {
	out := make(map[resource.Kind]string, len(r.Extractors))
	for name, bin := range r.Extractors {
		k, err := resource.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("resources.extractors: %w", err)
		}
		out[k] = bin
	}
	return out, nil
}

// BatchConfig controls directory conversion.
type BatchConfig struct {
	Workers int `mapstructure:"workers"`
	// Pattern is the file name glob of source documents.
	Pattern string `mapstructure:"pattern"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// DatabaseConfig holds PostgreSQL settings for the conversion ledger.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Conversion ConversionConfig `mapstructure:"conversion"`
	Output     OutputConfig     `mapstructure:"output"`
	Resources  ResourcesConfig  `mapstructure:"resources"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateConversion(c.Conversion),
		validateOutput(c.Output),
		validateResources(c.Resources),
		validateBatch(c.Batch),
		validateWatch(c.Watch),
		validateLogging(c.Logging),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Database.Enabled {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateConversion(c ConversionConfig) error {
	var errs []string
	for _, g := range []struct{ key, val string }{
		{"conversion.source", c.Source},
		{"conversion.target", c.Target},
	} {
		if g.val == "" {
			continue
		}
		if _, err := scene.ParseGeneration(g.val); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", g.key, err))
		}
	}
	if c.Scale < 0 {
		errs = append(errs, fmt.Sprintf("conversion.scale must be >= 0, got %v", c.Scale))
	}
	if c.InstructionLimit < 1 {
		errs = append(errs, fmt.Sprintf("conversion.instruction_limit must be >= 1, got %d", c.InstructionLimit))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateOutput(o OutputConfig) error {
	var errs []string
	validEncodings := map[string]bool{"auto": true, "utf8": true, "utf16": true}
	if !validEncodings[o.Encoding] {
		errs = append(errs, fmt.Sprintf("output.encoding must be one of [auto, utf8, utf16], got %q", o.Encoding))
	}
	if o.Extension == "" {
		errs = append(errs, "output.extension must not be empty")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateResources(r ResourcesConfig) error {
	if _, err := r.ExtractorsByKind(); err != nil {
		return err
	}
	if !r.Enabled {
		return nil
	}
	var errs []string
	if r.ExportDir == "" {
		errs = append(errs, "resources.export_dir must not be empty when resources are enabled")
	}
	if len(r.PackageDirs) == 0 {
		errs = append(errs, "resources.package_dirs must not be empty when resources are enabled")
	}
	if len(r.Extractors) == 0 {
		errs = append(errs, "resources.extractors must name at least one extractor when resources are enabled")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateBatch(b BatchConfig) error {
	var errs []string
	if b.Workers < 1 {
		errs = append(errs, fmt.Sprintf("batch.workers must be >= 1, got %d", b.Workers))
	}
	if b.Pattern == "" {
		errs = append(errs, "batch.pattern must not be empty")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateWatch(w WatchConfig) error {
	if w.Debounce < 0 {
		return errors.New("watch.debounce must not be negative")
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result. An empty path loads the
// defaults and environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with LEVELPORT_ prefix
	v.SetEnvPrefix("LEVELPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("conversion.source", "")
	v.SetDefault("conversion.target", "")
	v.SetDefault("conversion.scale", 0)
	v.SetDefault("conversion.rules_dir", "")
	v.SetDefault("conversion.scripts_dir", "")
	v.SetDefault("conversion.instruction_limit", 100000)

	v.SetDefault("output.dir", "out")
	v.SetDefault("output.encoding", "auto")
	v.SetDefault("output.extension", ".t3d")
	v.SetDefault("output.crlf", false)

	v.SetDefault("resources.enabled", false)
	v.SetDefault("resources.package_dirs", []string{})
	v.SetDefault("resources.export_dir", "export")
	v.SetDefault("resources.extractors", map[string]string{})

	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.pattern", "*.t3d")

	v.SetDefault("watch.debounce", "250ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "levelport")
	v.SetDefault("database.password", "levelport")
	v.SetDefault("database.name", "levelport")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "1h")
}
