package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/crmlens/internal/anomaly"
	"github.com/KaramelBytes/crmlens/internal/estimate"
	"github.com/KaramelBytes/crmlens/internal/ingest"
	"github.com/KaramelBytes/crmlens/internal/normalize"
)

// Global configuration structure.
type Global struct {
	Anomaly   Anomaly   `mapstructure:"anomaly" yaml:"anomaly"`
	Estimate  Estimate  `mapstructure:"estimate" yaml:"estimate"`
	Normalize Normalize `mapstructure:"normalize" yaml:"normalize"`
	Ingest    Ingest    `mapstructure:"ingest" yaml:"ingest"`
	Log       Log       `mapstructure:"log" yaml:"log"`
	Server    Server    `mapstructure:"server" yaml:"server"`
}

// Anomaly configures the isolation forest detector.
type Anomaly struct {
	Contamination float64 `mapstructure:"contamination" yaml:"contamination" validate:"gt=0,lte=0.5"`
	Trees         int     `mapstructure:"trees" yaml:"trees" validate:"gte=1"`
	MaxSamples    int     `mapstructure:"max_samples" yaml:"max_samples" validate:"gte=0"`
	MinSamples    int     `mapstructure:"min_samples" yaml:"min_samples" validate:"gte=2"`
	Seed          int64   `mapstructure:"seed" yaml:"seed"`
	Unscorable    string  `mapstructure:"unscorable" yaml:"unscorable" validate:"oneof=normal missing error"`
}

// Estimate configures the synthetic sales estimator.
type Estimate struct {
	Trees      int   `mapstructure:"trees" yaml:"trees" validate:"gte=1"`
	Seed       int64 `mapstructure:"seed" yaml:"seed"`
	SizeMin    int   `mapstructure:"size_min" yaml:"size_min"`
	SizeMax    int   `mapstructure:"size_max" yaml:"size_max" validate:"gtfield=SizeMin"`
	TargetMin  int   `mapstructure:"target_min" yaml:"target_min"`
	TargetMax  int   `mapstructure:"target_max" yaml:"target_max" validate:"gtfield=TargetMin"`
	MaxWorkers int   `mapstructure:"max_workers" yaml:"max_workers" validate:"gte=0"`
}

// Normalize configures record cleaning.
type Normalize struct {
	MissingMarkers []string `mapstructure:"missing_markers" yaml:"missing_markers"`
	FillValue      string   `mapstructure:"fill_value" yaml:"fill_value"`
}

// Ingest configures file readers.
type Ingest struct {
	// Delimiter is a single character; empty means comma (or tab for .tsv).
	Delimiter  string `mapstructure:"delimiter" yaml:"delimiter" validate:"max=1"`
	MaxRows    int    `mapstructure:"max_rows" yaml:"max_rows" validate:"gte=0"`
	SheetName  string `mapstructure:"sheet_name" yaml:"sheet_name"`
	SheetIndex int    `mapstructure:"sheet_index" yaml:"sheet_index" validate:"gte=1"`
}

// Log configures the slog logger.
type Log struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// Server configures the HTTP dashboard.
type Server struct {
	Addr            string `mapstructure:"addr" yaml:"addr" validate:"required"`
	MaxUploadBytes  int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes" validate:"gte=1024"`
	ReadTimeoutSec  int    `mapstructure:"read_timeout_sec" yaml:"read_timeout_sec" validate:"gte=1"`
	WriteTimeoutSec int    `mapstructure:"write_timeout_sec" yaml:"write_timeout_sec" validate:"gte=1"`
}

// DefaultDir returns ~/.crmlens.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".crmlens"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.crmlens/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := DefaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	ad := anomaly.DefaultOptions()
	v.SetDefault("anomaly.contamination", ad.Contamination)
	v.SetDefault("anomaly.trees", ad.Trees)
	v.SetDefault("anomaly.max_samples", ad.MaxSamples)
	v.SetDefault("anomaly.min_samples", ad.MinSamples)
	v.SetDefault("anomaly.seed", ad.Seed)
	v.SetDefault("anomaly.unscorable", string(ad.Unscorable))

	ed := estimate.DefaultOptions()
	v.SetDefault("estimate.trees", ed.Trees)
	v.SetDefault("estimate.seed", ed.Seed)
	v.SetDefault("estimate.size_min", ed.SizeMin)
	v.SetDefault("estimate.size_max", ed.SizeMax)
	v.SetDefault("estimate.target_min", ed.TargetMin)
	v.SetDefault("estimate.target_max", ed.TargetMax)
	v.SetDefault("estimate.max_workers", 0)

	v.SetDefault("normalize.missing_markers", normalize.DefaultMissingMarkers)
	v.SetDefault("normalize.fill_value", "")

	v.SetDefault("ingest.delimiter", "")
	v.SetDefault("ingest.max_rows", 0)
	v.SetDefault("ingest.sheet_name", "")
	v.SetDefault("ingest.sheet_index", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.max_upload_bytes", 32<<20)
	v.SetDefault("server.read_timeout_sec", 30)
	v.SetDefault("server.write_timeout_sec", 120)
}

// Default returns the built-in configuration.
func Default() *Global {
	v := viper.New()
	setDefaults(v)
	var c Global
	// defaults always decode
	_ = v.Unmarshal(&c)
	return &c
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CRMLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value ranges and enums.
func (c *Global) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// AnomalyOptions maps the anomaly section onto detector options.
func (c *Global) AnomalyOptions() anomaly.Options {
	return anomaly.Options{
		Contamination: c.Anomaly.Contamination,
		Trees:         c.Anomaly.Trees,
		MaxSamples:    c.Anomaly.MaxSamples,
		MinSamples:    c.Anomaly.MinSamples,
		Seed:          c.Anomaly.Seed,
		Unscorable:    anomaly.Policy(c.Anomaly.Unscorable),
	}
}

// EstimateOptions maps the estimate section onto estimator options.
func (c *Global) EstimateOptions() estimate.Options {
	return estimate.Options{
		Trees:      c.Estimate.Trees,
		Seed:       c.Estimate.Seed,
		SizeMin:    c.Estimate.SizeMin,
		SizeMax:    c.Estimate.SizeMax,
		TargetMin:  c.Estimate.TargetMin,
		TargetMax:  c.Estimate.TargetMax,
		MaxWorkers: c.Estimate.MaxWorkers,
	}
}

// NormalizeOptions maps the normalize section onto cleaning options.
func (c *Global) NormalizeOptions() normalize.Options {
	return normalize.Options{
		MissingMarkers: append([]string(nil), c.Normalize.MissingMarkers...),
		FillValue:      c.Normalize.FillValue,
	}
}

// IngestOptions maps the ingest section onto reader options.
func (c *Global) IngestOptions() ingest.Options {
	o := ingest.DefaultOptions()
	if r := []rune(c.Ingest.Delimiter); len(r) == 1 {
		o.Delimiter = r[0]
	}
	o.MaxRows = c.Ingest.MaxRows
	o.SheetName = c.Ingest.SheetName
	if c.Ingest.SheetIndex > 0 {
		o.SheetIndex = c.Ingest.SheetIndex
	}
	return o
}
