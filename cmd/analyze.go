package cmd

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/crmlens/internal/fsutil"
	"github.com/KaramelBytes/crmlens/internal/ingest"
	"github.com/KaramelBytes/crmlens/internal/pipeline"
	"github.com/KaramelBytes/crmlens/internal/report"
	"github.com/spf13/cobra"
)

var (
	anaOutputPath    string
	anaFormat        string
	anaAnomaliesOnly bool
	anaReportRows    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Run the CRM pipeline on one CSV/TSV/XLSX export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		format, err := parseFormat(anaFormat)
		if err != nil {
			return err
		}
		if format == "xlsx" && anaOutputPath == "" {
			return fmt.Errorf("--format xlsx requires --output")
		}
		res, err := runFile(cmd, path)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := renderResult(&buf, res, format, filepath.Base(path), anaAnomaliesOnly, anaReportRows); err != nil {
			return err
		}
		if anaOutputPath != "" {
			if err := fsutil.SafeWriteFile(anaOutputPath, buf.Bytes()); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s results to %s (%d records, %d anomalies)\n", format, anaOutputPath, res.Table.Len(), res.Anomalies.Len())
			return nil
		}
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write results (stdout if omitted)")
	analyzeCmd.Flags().StringVarP(&anaFormat, "format", "f", "md", "output format: md|json|csv|xlsx")
	analyzeCmd.Flags().BoolVar(&anaAnomaliesOnly, "anomalies-only", false, "only emit anomalous records (csv/json)")
	analyzeCmd.Flags().IntVar(&anaReportRows, "report-rows", 50, "rows shown per Markdown table (0 = all)")
}

// runFile reads one export and runs an isolated pipeline invocation on it.
func runFile(cmd *cobra.Command, path string) (*pipeline.Result, error) {
	raw, err := ingest.ReadFile(path, cfg.IngestOptions())
	if err != nil {
		return nil, err
	}
	res, err := newRunner().Run(cmd.Context(), raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if n := len(res.Unscorable); n > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %d records have no usable phone (policy %s)\n", n, cfg.Anomaly.Unscorable)
	}
	return res, nil
}

func parseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "md", "markdown":
		return "md", nil
	case "json", "csv", "xlsx":
		return f, nil
	default:
		return "", fmt.Errorf("unsupported --format: %s (use md|json|csv|xlsx)", s)
	}
}

func formatExt(format string) string {
	if format == "md" {
		return ".md"
	}
	return "." + format
}

func renderResult(w io.Writer, res *pipeline.Result, format, name string, anomaliesOnly bool, rows int) error {
	switch format {
	case "json":
		doc := report.NewDocument(res, name)
		if anomaliesOnly {
			doc.Records = nil
		}
		return report.EncodeJSON(w, doc)
	case "csv":
		t := res.Table
		if anomaliesOnly {
			t = res.Anomalies
		}
		return report.WriteCSV(w, t)
	case "xlsx":
		return report.WriteXLSX(w, res)
	default:
		opt := report.DefaultOptions()
		opt.Name = name
		opt.MaxRows = rows
		_, err := io.WriteString(w, report.Markdown(res, opt))
		return err
	}
}
