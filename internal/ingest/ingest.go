package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/crmlens/internal/table"
)

// Options controls how an export file is turned into a table.
type Options struct {
	// Delimiter for CSV. If 0, ',' is used unless the file name ends in .tsv.
	Delimiter rune
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
	// XLSX sheet selection. SheetName wins over SheetIndex (1-based).
	SheetName  string
	SheetIndex int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{SheetIndex: 1}
}

// Reader turns an export file into a table.
type Reader interface {
	CanRead(name string) bool
	Read(r io.Reader, name string, opt Options) (*table.Table, error)
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

func init() {
	Register(csvReader{})
	Register(xlsxReader{})
}

// ReadFile selects a reader by file name and returns the parsed table.
// Unknown extensions are read as CSV.
func ReadFile(path string, opt Options) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Read(bytes.NewReader(data), filepath.Base(path), opt)
}

// Read parses r using the reader registered for name.
func Read(r io.Reader, name string, opt Options) (*table.Table, error) {
	for _, rd := range registry {
		if rd.CanRead(name) {
			return rd.Read(r, name, opt)
		}
	}
	return csvReader{}.Read(r, name, opt)
}

// ParseError reports input that cannot be parsed as tabular data.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s: line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
