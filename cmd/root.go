package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cfgpkg "github.com/KaramelBytes/crmlens/internal/config"
	"github.com/KaramelBytes/crmlens/internal/logging"
	"github.com/KaramelBytes/crmlens/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile       string
	debug         bool
	flagLogLevel  string
	flagLogFormat string
	// Pipeline flags (override config if set)
	flagContamination float64
	flagTrees         int
	flagSeed          int64
	flagUnscorable    string
	flagDelimiter     string
	flagMaxRows       int
	flagSheetName     string
	flagSheetIndex    int

	// Loaded configuration
	cfg         *cfgpkg.Global
	logger      *slog.Logger
	overrideErr error
)

var rootCmd = &cobra.Command{
	Use:   "crmlens",
	Short: "crmlens: clean CRM exports, flag anomalies and estimate sales potential",
	Long: `crmlens ingests a CRM record export (CSV or XLSX), removes duplicate contacts,
fills missing fields, canonicalizes phone numbers, flags unusual records with an
isolation forest and attaches a simulated sales estimate per record.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if overrideErr != nil {
			return overrideErr
		}
		if cfg == nil {
			return nil
		}
		return cfg.Validate()
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	// Persistent global flags available to all subcommands
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.crmlens/config.yaml)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format: text|json (overrides config)")
	pf.Float64Var(&flagContamination, "contamination", 0, "expected anomaly fraction in (0, 0.5] (overrides config)")
	pf.IntVar(&flagTrees, "trees", 0, "trees in the isolation forest and the sales forest (overrides config)")
	pf.Int64Var(&flagSeed, "seed", 0, "random seed for both models (overrides config)")
	pf.StringVar(&flagUnscorable, "unscorable", "", "records without a usable phone: normal|missing|error (overrides config)")
	pf.StringVar(&flagDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | '|' (overrides config)")
	pf.IntVar(&flagMaxRows, "max-rows", 0, "maximum data rows to read, 0 = unlimited (overrides config)")
	pf.StringVar(&flagSheetName, "sheet-name", "", "XLSX: sheet name to read (overrides config)")
	pf.IntVar(&flagSheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index, used if no sheet name (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = cfgpkg.Default()
	}
	cfg = c
	overrideErr = applyFlagOverrides(cfg)
	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	logger = logging.New(os.Stderr, level, cfg.Log.Format)
}

// applyFlagOverrides copies changed persistent flags onto c.
func applyFlagOverrides(c *cfgpkg.Global) error {
	f := rootCmd.PersistentFlags()
	if f.Changed("log-level") {
		c.Log.Level = flagLogLevel
	}
	if f.Changed("log-format") {
		c.Log.Format = flagLogFormat
	}
	if f.Changed("contamination") {
		c.Anomaly.Contamination = flagContamination
	}
	if f.Changed("trees") {
		c.Anomaly.Trees = flagTrees
		c.Estimate.Trees = flagTrees
	}
	if f.Changed("seed") {
		c.Anomaly.Seed = flagSeed
		c.Estimate.Seed = flagSeed
	}
	if f.Changed("unscorable") {
		c.Anomaly.Unscorable = flagUnscorable
	}
	if f.Changed("max-rows") {
		c.Ingest.MaxRows = flagMaxRows
	}
	if f.Changed("sheet-name") {
		c.Ingest.SheetName = flagSheetName
	}
	if f.Changed("sheet-index") {
		c.Ingest.SheetIndex = flagSheetIndex
	}
	if f.Changed("delimiter") {
		d, err := parseDelimiter(flagDelimiter)
		if err != nil {
			return err
		}
		c.Ingest.Delimiter = d
	}
	return nil
}

func parseDelimiter(s string) (string, error) {
	switch s {
	case ",", ";", "|":
		return s, nil
	case "\t", "tab":
		return "\t", nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("unsupported --delimiter: %s", s)
	}
}

func newRunner() *pipeline.Runner {
	return &pipeline.Runner{Config: cfg, Logger: logger}
}
