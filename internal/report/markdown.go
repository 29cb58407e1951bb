package report

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
	"time"

	"github.com/KaramelBytes/crmlens/internal/normalize"
	"github.com/KaramelBytes/crmlens/internal/pipeline"
	"github.com/KaramelBytes/crmlens/internal/table"
)

// Options controls the text renderers.
type Options struct {
	// Name labels the input in the summary.
	Name string
	// MaxRows bounds the [RESULTS] and [ANOMALIES] tables; 0 means unlimited.
	MaxRows int
	// MaxBars bounds the [PREDICTED SALES] chart; 0 means unlimited.
	MaxBars int
	// BarWidth is the width of the longest bar in characters.
	BarWidth int
}

// DefaultOptions returns 50 rows, 20 bars and 40-character bars.
func DefaultOptions() Options {
	return Options{MaxRows: 50, MaxBars: 20, BarWidth: 40}
}

// Markdown renders res as a sectioned Markdown report.
func Markdown(res *pipeline.Result, opt Options) string {
	s := Summarize(res, opt.Name)
	var b strings.Builder

	b.WriteString("[PIPELINE SUMMARY]\n")
	if s.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", s.Name))
	}
	b.WriteString(fmt.Sprintf("Run: %s\n", s.RunID))
	b.WriteString(fmt.Sprintf("Records: %d\n", s.Records))
	b.WriteString(fmt.Sprintf("Anomalies: %d", s.Anomalies))
	if s.Records > 0 {
		b.WriteString(fmt.Sprintf(" (%.1f%%)", float64(s.Anomalies)*100/float64(s.Records)))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Scored: %d (unscorable %d, threshold %.4f)\n", s.Fitted, s.Unscorable, s.Threshold))
	if res.Duration > 0 {
		b.WriteString(fmt.Sprintf("Duration: %s\n", res.Duration.Round(time.Millisecond)))
	}

	b.WriteString("\n[CLEANING]\n")
	c := s.Cleaning
	b.WriteString(fmt.Sprintf("- rows in %d, rows out %d, duplicates removed %d\n", c.InputRows, c.OutputRows, c.DuplicatesRemoved))
	b.WriteString(fmt.Sprintf("- imputed: %s %d, %s %d\n", normalize.ColPhone, c.Imputed[normalize.ColPhone], normalize.ColCompany, c.Imputed[normalize.ColCompany]))
	b.WriteString(fmt.Sprintf("- phones formatted %d, left non-canonical %d\n", c.PhonesFormatted, c.PhonesNonCanonical))

	b.WriteString("\n[SCHEMA]\n")
	for _, col := range s.Columns {
		total := col.NonNull + col.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(col.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%, unique %d)", safeName(col.Name), col.Kind, col.NonNull, missPct, col.Unique))
		if col.Min != nil {
			b.WriteString(fmt.Sprintf(", min %.4g, max %.4g, mean %.4g, std %.4g", *col.Min, *col.Max, *col.Mean, *col.Std))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n[ANOMALIES]\n")
	if res.Anomalies.Len() == 0 {
		b.WriteString("No anomalous records.\n")
	} else {
		writeRows(&b, res.Anomalies, opt.MaxRows)
	}

	b.WriteString("\n[PREDICTED SALES]\n")
	bars := s.Sales
	if opt.MaxBars > 0 && len(bars) > opt.MaxBars {
		bars = TopBars(bars, opt.MaxBars)
		b.WriteString(fmt.Sprintf("Top %d of %d companies by mean prediction.\n", len(bars), len(s.Sales)))
	}
	writeBars(&b, bars, opt.BarWidth)
	b.WriteString("Note: predictions come from a model trained on simulated data.\n")

	b.WriteString("\n[RESULTS]\n")
	writeRows(&b, res.Table, opt.MaxRows)
	return b.String()
}

func writeBars(b *strings.Builder, bars []Bar, width int) {
	if len(bars) == 0 {
		b.WriteString("No predictions.\n")
		return
	}
	if width <= 0 {
		width = 40
	}
	labelW := 0
	peak := 0.0
	for _, bar := range bars {
		labelW = max(labelW, utf8.RuneCountInString(safeVal(bar.Label)))
		peak = math.Max(peak, bar.Value)
	}
	labelW = min(labelW, 30)
	for _, bar := range bars {
		label := truncate(safeVal(bar.Label), labelW)
		n := 0
		if peak > 0 {
			n = int(math.Round(bar.Value / peak * float64(width)))
		}
		b.WriteString(fmt.Sprintf("%-*s | %s %.2f\n", labelW, label, strings.Repeat("#", n), bar.Value))
	}
}

func writeRows(b *strings.Builder, t *table.Table, maxRows int) {
	header := t.Header()
	b.WriteString("| ")
	b.WriteString(strings.Join(mapStrings(header, safeName), " | "))
	b.WriteString(" |\n|")
	b.WriteString(strings.Repeat(" --- |", len(header)))
	b.WriteString("\n")
	n := t.Len()
	if maxRows > 0 && n > maxRows {
		n = maxRows
	}
	for i := 0; i < n; i++ {
		row := t.Row(i)
		for j, v := range row {
			row[j] = safeVal(truncate(v, 80))
		}
		b.WriteString("| ")
		b.WriteString(strings.Join(row, " | "))
		b.WriteString(" |\n")
	}
	if n < t.Len() {
		b.WriteString(fmt.Sprintf("... %d more rows\n", t.Len()-n))
	}
}

// truncate shortens s to at most n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}

func mapStrings(in []string, fn func(string) string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fn(s)
	}
	return out
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
