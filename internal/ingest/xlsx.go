package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/KaramelBytes/crmlens/internal/table"
	"github.com/xuri/excelize/v2"
)

type xlsxReader struct{}

func (xlsxReader) CanRead(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".xlsx")
}

func (xlsxReader) Read(r io.Reader, name string, opt Options) (*table.Table, error) {
	return ReadXLSX(r, name, opt)
}

// ReadXLSX reads one worksheet of a workbook into a table. The first
// non-blank row is the header.
func ReadXLSX(r io.Reader, name string, opt Options) (*table.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Source: name, Err: fmt.Errorf("open xlsx: %w", err)}
	}
	defer f.Close()

	sheet, err := pickSheet(f.GetSheetList(), opt)
	if err != nil {
		return nil, &ParseError{Source: name, Err: err}
	}
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, &ParseError{Source: name, Err: fmt.Errorf("read sheet %q: %w", sheet, err)}
	}

	start := 0
	for start < len(all) && blank(all[start]) {
		start++
	}
	if start == len(all) {
		return nil, &ParseError{Source: name, Err: fmt.Errorf("sheet %q has no header row", sheet)}
	}
	header := cleanHeader(all[start])
	ncol := len(header)

	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	var rows [][]string
	for i := start + 1; i < len(all) && len(rows) < maxRows; i++ {
		rec := all[i]
		if blank(rec) {
			continue
		}
		if len(rec) > ncol {
			return nil, &ParseError{Source: name, Line: i + 1, Err: fmt.Errorf("row has %d cells, header has %d", len(rec), ncol)}
		}
		rows = append(rows, rec)
	}
	t, err := table.New(header, rows)
	if err != nil {
		return nil, &ParseError{Source: name, Err: err}
	}
	return t, nil
}

func pickSheet(sheets []string, opt Options) (string, error) {
	if len(sheets) == 0 {
		return "", errors.New("workbook has no sheets")
	}
	if opt.SheetName != "" {
		for _, s := range sheets {
			if strings.EqualFold(s, opt.SheetName) {
				return s, nil
			}
		}
		return "", fmt.Errorf("sheet %q not found; available sheets: %s", opt.SheetName, strings.Join(sheets, ", "))
	}
	idx := opt.SheetIndex
	if idx <= 0 {
		idx = 1
	}
	if idx > len(sheets) {
		return "", fmt.Errorf("sheet index %d out of range (workbook has %d sheets)", idx, len(sheets))
	}
	return sheets[idx-1], nil
}
