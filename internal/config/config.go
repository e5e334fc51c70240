package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/domain/verdict"
	"hoopval/internal"
	"hoopval/internal/errors"
	"hoopval/internal/fairness"
	"hoopval/internal/robustness"
	"hoopval/internal/validation"
)

// EnvPrefix prefixes every environment override (HOOPVAL_VALIDATION_SEED, ...)
const EnvPrefix = "HOOPVAL"

// Config represents the complete application configuration
type Config struct {
	Validation ValidationConfig `yaml:"validation" envconfig:"VALIDATION"`
	Robustness RobustnessConfig `yaml:"robustness" envconfig:"ROBUSTNESS"`
	Fairness   FairnessConfig   `yaml:"fairness" envconfig:"FAIRNESS"`
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Database   DatabaseConfig   `yaml:"database" envconfig:"DATABASE"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
}

// ValidationConfig holds the run-wide statistical parameters
type ValidationConfig struct {
	ConfidenceLevel     float64 `yaml:"confidence_level" envconfig:"CONFIDENCE_LEVEL" validate:"gt=0,lt=1"`
	BootstrapIterations int     `yaml:"bootstrap_iterations" envconfig:"BOOTSTRAP_ITERATIONS" validate:"min=1"`
	Shuffles            int     `yaml:"shuffles" envconfig:"SHUFFLES" validate:"min=1"`
	FoldCount           int     `yaml:"fold_count" envconfig:"FOLD_COUNT" validate:"min=2"`
	FoldStrategy        string  `yaml:"fold_strategy" envconfig:"FOLD_STRATEGY" validate:"oneof=contiguous shuffled"`
	Seed                int64   `yaml:"seed" envconfig:"SEED"`
	Workers             int     `yaml:"workers" envconfig:"WORKERS" validate:"min=0"`
	MetricWorkers       int     `yaml:"metric_workers" envconfig:"METRIC_WORKERS" validate:"min=0"`
}

// RobustnessConfig holds the perturbation battery settings
type RobustnessConfig struct {
	Checks            []string `yaml:"checks" envconfig:"CHECKS" validate:"dive,oneof=extremum_trim subgroup_exclusion normalization_swap window_resize ranking_swap"`
	TrimK             int      `yaml:"trim_k" envconfig:"TRIM_K" validate:"min=1"`
	BandLower         float64  `yaml:"band_lower" envconfig:"BAND_LOWER" validate:"gte=0,lte=1"`
	BandUpper         float64  `yaml:"band_upper" envconfig:"BAND_UPPER" validate:"gte=1"`
	RequiredPasses    int      `yaml:"required_passes" envconfig:"REQUIRED_PASSES" validate:"min=1"`
	Windows           []int    `yaml:"windows" envconfig:"WINDOWS" validate:"dive,min=1"`
	ExcludedGroups    []string `yaml:"excluded_groups" envconfig:"EXCLUDED_GROUPS"`
	SubgroupMagnitude bool     `yaml:"subgroup_magnitude" envconfig:"SUBGROUP_MAGNITUDE"`
	AlternateBasis    string   `yaml:"alternate_basis" envconfig:"ALTERNATE_BASIS" validate:"oneof=per_game rate minute_weighted"`
}

// FairnessConfig holds the default share-shift flagging rule
type FairnessConfig struct {
	ThresholdPP float64 `yaml:"threshold_pp" envconfig:"THRESHOLD_PP" validate:"gt=0,lte=100"`
	Window      int     `yaml:"window" envconfig:"WINDOW" validate:"min=1"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gte=0"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"min=1"`
}

// DatabaseConfig holds the ledger connection; an empty URL keeps runs in memory
type DatabaseConfig struct {
	URL          string `yaml:"url" envconfig:"URL"`
	MaxOpenConns int    `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" validate:"min=0"`
	MaxIdleConns int    `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" validate:"min=0"`
}

// LoggingConfig holds log verbosity and format
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=error warn info debug trace ERROR WARN INFO DEBUG TRACE"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=text json"`
}

// Default returns the built-in configuration
func Default() Config {
	rob := robustness.DefaultConfig()
	return Config{
		Validation: ValidationConfig{
			ConfidenceLevel:     0.95,
			BootstrapIterations: 5000,
			Shuffles:            10000,
			FoldCount:           5,
			FoldStrategy:        string(stats.FoldContiguous),
			Seed:                42,
		},
		Robustness: RobustnessConfig{
			Checks:         rob.Checks,
			TrimK:          rob.TrimK,
			BandLower:      rob.Band.Lower,
			BandUpper:      rob.Band.Upper,
			RequiredPasses: rob.RequiredPasses,
			Windows:        rob.Windows,
			ExcludedGroups: rob.ExcludedGroups,
			AlternateBasis: string(rob.AlternateBasis),
		},
		Fairness: FairnessConfig{
			ThresholdPP: fairness.DefaultThresholdPP,
			Window:      fairness.DefaultWindow,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    32 << 20,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration in layers: defaults, then the YAML file at
// path (optional), then .env files and HOOPVAL_* environment variables.
// The result is validated before it is returned.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional; variables already set in the environment win
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, errors.Wrap(err, "failed to load env file")
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, errors.Wrap(fmt.Errorf("%w: %v", core.ErrConfiguration, err), "failed to load config from env")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &cfg, nil
}

// loadFromFile overlays the YAML file onto cfg; absent keys keep their value
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(fmt.Errorf("%w: %v", core.ErrConfiguration, err), "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(fmt.Errorf("%w: %v", core.ErrConfiguration, err), "failed to parse config file %s", path)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct-tag validation and the cross-field rules
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return core.NewConfigurationError(fe.Namespace(),
				fmt.Sprintf("failed %q rule (value %v)", fieldRule(fe), fe.Value()))
		}
		return core.NewConfigurationError("config", err.Error())
	}

	checks := len(c.Robustness.Checks)
	if checks == 0 {
		checks = len(robustness.DefaultChecks())
	}
	if c.Robustness.RequiredPasses > checks {
		return core.NewConfigurationError("robustness.required_passes",
			fmt.Sprintf("%d exceeds the %d configured checks", c.Robustness.RequiredPasses, checks))
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns && c.Database.MaxOpenConns > 0 {
		return core.NewConfigurationError("database.max_idle_conns", "cannot exceed max_open_conns")
	}
	return nil
}

func fieldRule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// Pipeline converts the file/env shape into the pipeline configuration
func (c Config) Pipeline() validation.Config {
	v, r := c.Validation, c.Robustness
	return validation.Config{
		ConfidenceLevel:     v.ConfidenceLevel,
		BootstrapIterations: v.BootstrapIterations,
		Shuffles:            v.Shuffles,
		FoldCount:           v.FoldCount,
		FoldStrategy:        stats.FoldStrategy(v.FoldStrategy),
		Seed:                v.Seed,
		Workers:             v.Workers,
		MetricWorkers:       v.MetricWorkers,
		Robustness: robustness.Config{
			Checks:            r.Checks,
			TrimK:             r.TrimK,
			Band:              verdict.Band{Lower: r.BandLower, Upper: r.BandUpper},
			RequiredPasses:    r.RequiredPasses,
			Windows:           r.Windows,
			ExcludedGroups:    r.ExcludedGroups,
			SubgroupMagnitude: r.SubgroupMagnitude,
			AlternateBasis:    stats.Basis(r.AlternateBasis),
			ConfidenceLevel:   v.ConfidenceLevel,
		},
		Fairness: fairness.Config{
			ThresholdPP: c.Fairness.ThresholdPP,
			Window:      c.Fairness.Window,
		},
	}
}

// Logger builds the configured logger
func (c Config) Logger() *internal.Logger {
	return internal.NewLoggerTo(os.Stderr, internal.ParseLogLevel(c.Logging.Level),
		strings.EqualFold(c.Logging.Format, "json"))
}
