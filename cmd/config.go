package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/crmlens/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set crmlens configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No config loaded")
			return nil
		}
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value (section.key) and save to disk",
	Args:  cobra.ExactArgs(2),
	// an invalid saved config must stay repairable
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := cfgpkg.Load(cfgFile)
		if err != nil {
			c = cfgpkg.Default()
		}
		if err := setKey(c, key, val); err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func setKey(c *cfgpkg.Global, key, val string) error {
	atoi := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "anomaly.contamination":
		c.Anomaly.Contamination, err = strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for %s: %v", key, val)
		}
	case "anomaly.trees":
		c.Anomaly.Trees, err = atoi()
	case "anomaly.max_samples":
		c.Anomaly.MaxSamples, err = atoi()
	case "anomaly.min_samples":
		c.Anomaly.MinSamples, err = atoi()
	case "anomaly.seed":
		c.Anomaly.Seed, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
	case "anomaly.unscorable":
		c.Anomaly.Unscorable = strings.ToLower(val)
	case "estimate.trees":
		c.Estimate.Trees, err = atoi()
	case "estimate.seed":
		c.Estimate.Seed, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
	case "estimate.size_min":
		c.Estimate.SizeMin, err = atoi()
	case "estimate.size_max":
		c.Estimate.SizeMax, err = atoi()
	case "estimate.target_min":
		c.Estimate.TargetMin, err = atoi()
	case "estimate.target_max":
		c.Estimate.TargetMax, err = atoi()
	case "estimate.max_workers":
		c.Estimate.MaxWorkers, err = atoi()
	case "normalize.missing_markers":
		var markers []string
		for _, m := range strings.Split(val, ",") {
			markers = append(markers, strings.TrimSpace(m))
		}
		c.Normalize.MissingMarkers = markers
	case "normalize.fill_value":
		c.Normalize.FillValue = val
	case "ingest.delimiter":
		c.Ingest.Delimiter, err = parseDelimiter(val)
	case "ingest.max_rows":
		c.Ingest.MaxRows, err = atoi()
	case "ingest.sheet_name":
		c.Ingest.SheetName = val
	case "ingest.sheet_index":
		c.Ingest.SheetIndex, err = atoi()
	case "log.level":
		c.Log.Level = strings.ToLower(val)
	case "log.format":
		c.Log.Format = strings.ToLower(val)
	case "server.addr":
		c.Server.Addr = val
	case "server.max_upload_bytes":
		c.Server.MaxUploadBytes, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
	case "server.read_timeout_sec":
		c.Server.ReadTimeoutSec, err = atoi()
	case "server.write_timeout_sec":
		c.Server.WriteTimeoutSec, err = atoi()
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}
