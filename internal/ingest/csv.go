package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/KaramelBytes/crmlens/internal/table"
)

type csvReader struct{}

func (csvReader) CanRead(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".csv") || strings.HasSuffix(n, ".tsv") || strings.HasSuffix(n, ".txt")
}

func (csvReader) Read(r io.Reader, name string, opt Options) (*table.Table, error) {
	return ReadCSV(r, name, opt)
}

// ReadCSV reads delimited text with a header row into a table.
func ReadCSV(r io.Reader, name string, opt Options) (*table.Table, error) {
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(name)
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	// stray quotes inside unquoted fields are kept as text
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Source: name, Err: errors.New("no header row")}
		}
		return nil, &ParseError{Source: name, Line: csvLine(err, 1), Err: err}
	}
	header = cleanHeader(header)
	if blank(header) {
		return nil, &ParseError{Source: name, Line: 1, Err: errors.New("empty header row")}
	}
	ncol := len(header)

	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	var rows [][]string
	for len(rows) < maxRows {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &ParseError{Source: name, Line: csvLine(err, len(rows)+2), Err: err}
		}
		if len(rec) > ncol {
			line, _ := cr.FieldPos(0)
			return nil, &ParseError{Source: name, Line: line, Err: fmt.Errorf("row has %d fields, header has %d", len(rec), ncol)}
		}
		rows = append(rows, rec)
	}
	t, err := table.New(header, rows)
	if err != nil {
		return nil, &ParseError{Source: name, Err: err}
	}
	return t, nil
}

func csvLine(err error, fallback int) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return fallback
}

func sniffDelimiter(name string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	return ','
}
