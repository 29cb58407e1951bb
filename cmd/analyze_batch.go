package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KaramelBytes/crmlens/internal/fsutil"
	"github.com/spf13/cobra"
)

var (
	abOutDir          string
	abFormat          string
	abAnomaliesOnly   bool
	abReportRows      int
	abQuiet           bool
	abContinueOnError bool
)

var analyzeBatchCmd = &cobra.Command{
	Use:   "analyze-batch <files...>",
	Short: "Run the CRM pipeline on several exports, one isolated run per file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		format, err := parseFormat(abFormat)
		if err != nil {
			return err
		}
		if format == "xlsx" && abOutDir == "" {
			return fmt.Errorf("--format xlsx requires --out-dir")
		}
		out := cmd.OutOrStdout()

		var failed []string
		total := len(files)
		for i, path := range files {
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			if !abQuiet {
				fmt.Fprintf(out, "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			if err := analyzeOne(cmd, path, format); err != nil {
				if !abContinueOnError {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %v\n", err)
				failed = append(failed, filepath.Base(path))
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d files failed: %s", len(failed), total, strings.Join(failed, ", "))
		}
		return nil
	},
}

func analyzeOne(cmd *cobra.Command, path, format string) error {
	res, err := runFile(cmd, path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := renderResult(&buf, res, format, filepath.Base(path), abAnomaliesOnly, abReportRows); err != nil {
		return err
	}
	if abOutDir == "" {
		if !abQuiet {
			_, err = cmd.OutOrStdout().Write(buf.Bytes())
		}
		return err
	}

	base := filepath.Base(path)
	safe := strings.TrimSuffix(base, filepath.Ext(base))
	if err := os.MkdirAll(abOutDir, 0o755); err != nil {
		return err
	}
	outFile, err := fsutil.UniquePath(abOutDir, safe, formatExt(format))
	if err != nil {
		return err
	}
	if !abQuiet && filepath.Base(outFile) != safe+formatExt(format) {
		fmt.Fprintf(cmd.OutOrStdout(), "⚠ Detected existing output, writing to %s to avoid overwrite.\n", filepath.Base(outFile))
	}
	if err := fsutil.SafeWriteFile(outFile, buf.Bytes()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if !abQuiet {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s (%d records, %d anomalies)\n", outFile, res.Table.Len(), res.Anomalies.Len())
	}
	return nil
}

// expandInputs resolves globs, keeps literal paths that exist, drops
// duplicates and sorts the result.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

func init() {
	rootCmd.AddCommand(analyzeBatchCmd)
	analyzeBatchCmd.Flags().StringVar(&abOutDir, "out-dir", "", "directory for per-file results (stdout if omitted)")
	analyzeBatchCmd.Flags().StringVarP(&abFormat, "format", "f", "md", "output format: md|json|csv|xlsx")
	analyzeBatchCmd.Flags().BoolVar(&abAnomaliesOnly, "anomalies-only", false, "only emit anomalous records (csv/json)")
	analyzeBatchCmd.Flags().IntVar(&abReportRows, "report-rows", 50, "rows shown per Markdown table (0 = all)")
	analyzeBatchCmd.Flags().BoolVar(&abQuiet, "quiet", false, "suppress progress and non-essential output")
	analyzeBatchCmd.Flags().BoolVar(&abContinueOnError, "continue-on-error", false, "keep going when a file fails and report failures at the end")
}
