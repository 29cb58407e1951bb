package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/crmlens/internal/estimate"
	"github.com/KaramelBytes/crmlens/internal/normalize"
	"github.com/KaramelBytes/crmlens/internal/pipeline"
	"github.com/KaramelBytes/crmlens/internal/table"
)

// Sheet names of the XLSX workbook.
const (
	SheetResults   = "Results"
	SheetAnomalies = "Anomalies"
)

// Document is the JSON shape of a pipeline result.
type Document struct {
	Summary   *Summary         `json:"summary"`
	Columns   []string         `json:"columns"`
	Records   []map[string]any `json:"records"`
	Anomalies []map[string]any `json:"anomalies"`
}

// NewDocument builds the JSON document for res.
func NewDocument(res *pipeline.Result, name string) *Document {
	return &Document{
		Summary:   Summarize(res, name),
		Columns:   res.Table.Header(),
		Records:   Records(res.Table),
		Anomalies: Records(res.Anomalies),
	}
}

// Records converts t to one map per row with cells typed by column kind.
func Records(t *table.Table) []map[string]any {
	cols := t.Columns()
	out := make([]map[string]any, t.Len())
	for i := range out {
		rec := make(map[string]any, len(cols))
		for _, c := range cols {
			rec[c.Name] = typed(t.Value(i, c.Name), c.Kind)
		}
		out[i] = rec
	}
	return out
}

func typed(v string, k table.Kind) any {
	s := strings.TrimSpace(v)
	switch k {
	case table.Int:
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case table.Float:
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return v
}

// WriteJSON writes res as an indented JSON document.
func WriteJSON(w io.Writer, res *pipeline.Result, name string) error {
	return EncodeJSON(w, NewDocument(res, name))
}

// EncodeJSON writes doc as indented JSON.
func EncodeJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteCSV writes t with its header row.
func WriteCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := 0; i < t.Len(); i++ {
		if err := cw.Write(t.Row(i)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes a workbook with Results and Anomalies sheets and a
// clustered column chart of Company vs Predicted_Sales on the Results sheet.
func WriteXLSX(w io.Writer, res *pipeline.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetResults); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSheet(f, SheetResults, res.Table); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetAnomalies); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	if err := writeSheet(f, SheetAnomalies, res.Anomalies); err != nil {
		return err
	}
	if err := addSalesChart(f, res.Table); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t *table.Table) error {
	header := make([]any, 0, len(t.Header()))
	for _, h := range t.Header() {
		header = append(header, h)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	cols := t.Columns()
	for i := 0; i < t.Len(); i++ {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = typed(t.Value(i, c.Name), c.Kind)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	if len(cols) > 0 {
		last, err := excelize.ColumnNumberToName(len(cols))
		if err != nil {
			return err
		}
		if err := f.AutoFilter(sheet, fmt.Sprintf("A1:%s%d", last, t.Len()+1), nil); err != nil {
			return fmt.Errorf("%s autofilter: %w", sheet, err)
		}
	}
	return nil
}

func addSalesChart(f *excelize.File, t *table.Table) error {
	ci, ok := t.Index(normalize.ColCompany)
	pi, ok2 := t.Index(estimate.ColPredicted)
	if !ok || !ok2 || t.Len() == 0 {
		return nil
	}
	company, err := excelize.ColumnNumberToName(ci + 1)
	if err != nil {
		return err
	}
	pred, err := excelize.ColumnNumberToName(pi + 1)
	if err != nil {
		return err
	}
	anchor, err := excelize.ColumnNumberToName(len(t.Header()) + 2)
	if err != nil {
		return err
	}
	last := t.Len() + 1
	chart := &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$%s$1", SheetResults, pred),
			Categories: fmt.Sprintf("%s!$%s$2:$%s$%d", SheetResults, company, company, last),
			Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", SheetResults, pred, pred, last),
		}},
		Title:  []excelize.RichTextRun{{Text: "Predicted Sales by Company"}},
		Legend: excelize.ChartLegend{Position: "none"},
	}
	if err := f.AddChart(SheetResults, anchor+"2", chart); err != nil {
		return fmt.Errorf("add chart: %w", err)
	}
	return nil
}
