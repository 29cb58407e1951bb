package table

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind describes how the cells of a column should be interpreted by renderers.
type Kind int

const (
	String Kind = iota
	Int
	Float
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	default:
		return "string"
	}
}

var (
	// ErrUnknownColumn is returned when a named column is not part of the schema.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrColumnExists is returned when appending a column whose name is taken.
	ErrColumnExists = errors.New("column already exists")
	// ErrLengthMismatch is returned when a row or column does not fit the table shape.
	ErrLengthMismatch = errors.New("length mismatch")
)

// Column is a named, typed column of a Table.
type Column struct {
	Name string
	Kind Kind
}

// Table is an ordered sequence of records sharing a uniform schema.
// Tables are never mutated after construction; derived tables share no
// row storage with their source.
type Table struct {
	cols  []Column
	index map[string]int
	rows  [][]string
}

// New builds a table of String columns from a header and rows. Rows shorter
// than the header are padded with empty cells; longer rows are rejected.
func New(header []string, rows [][]string) (*Table, error) {
	cols := make([]Column, len(header))
	for i, h := range header {
		cols[i] = Column{Name: h, Kind: String}
	}
	return NewTyped(cols, rows)
}

// NewTyped builds a table with an explicit schema.
func NewTyped(cols []Column, rows [][]string) (*Table, error) {
	t := &Table{
		cols:  append([]Column(nil), cols...),
		index: make(map[string]int, len(cols)),
		rows:  make([][]string, 0, len(rows)),
	}
	for i, c := range t.cols {
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrColumnExists, c.Name)
		}
		t.index[c.Name] = i
	}
	for i, r := range rows {
		if len(r) > len(cols) {
			return nil, fmt.Errorf("row %d has %d cells, schema has %d: %w", i+1, len(r), len(cols), ErrLengthMismatch)
		}
		row := make([]string, len(cols))
		copy(row, r)
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Columns returns a copy of the schema.
func (t *Table) Columns() []Column {
	return append([]Column(nil), t.cols...)
}

// Header returns the column names in order.
func (t *Table) Header() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Has reports whether the named column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Kind returns the kind of the named column.
func (t *Table) Kind(name string) (Kind, bool) {
	i, ok := t.index[name]
	if !ok {
		return String, false
	}
	return t.cols[i].Kind, true
}

// Index returns the position of the named column.
func (t *Table) Index(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Value returns the cell at row i of the named column.
// It returns "" when the column does not exist.
func (t *Table) Value(i int, name string) string {
	j, ok := t.index[name]
	if !ok {
		return ""
	}
	return t.rows[i][j]
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []string {
	return append([]string(nil), t.rows[i]...)
}

// Rows returns a deep copy of all rows.
func (t *Table) Rows() [][]string {
	out := make([][]string, len(t.rows))
	for i := range t.rows {
		out[i] = t.Row(i)
	}
	return out
}

// Column returns a copy of the values of the named column.
func (t *Table) Column(name string) ([]string, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out, nil
}

// Floats parses the named column as numbers. Empty cells are skipped and
// reported as ok=false at their position.
func (t *Table) Floats(name string) (vals []float64, ok []bool, err error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, nil, err
	}
	vals = make([]float64, len(col))
	ok = make([]bool, len(col))
	for i, s := range col {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		f, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			return nil, nil, fmt.Errorf("column %q row %d: %w", name, i+1, perr)
		}
		vals[i] = f
		ok[i] = true
	}
	return vals, ok, nil
}

// WithColumn returns a new table with the column appended. The receiver is
// left untouched.
func (t *Table) WithColumn(name string, kind Kind, values []string) (*Table, error) {
	if t.Has(name) {
		return nil, fmt.Errorf("%w: %q", ErrColumnExists, name)
	}
	if len(values) != len(t.rows) {
		return nil, fmt.Errorf("column %q has %d values, table has %d rows: %w", name, len(values), len(t.rows), ErrLengthMismatch)
	}
	out := &Table{
		cols:  append(t.Columns(), Column{Name: name, Kind: kind}),
		index: make(map[string]int, len(t.cols)+1),
		rows:  make([][]string, len(t.rows)),
	}
	for i, c := range out.cols {
		out.index[c.Name] = i
	}
	for i, r := range t.rows {
		row := make([]string, len(r)+1)
		copy(row, r)
		row[len(r)] = values[i]
		out.rows[i] = row
	}
	return out, nil
}

// Map returns a new table with fn applied to every row. fn receives a copy it
// may modify and must keep the row length.
func (t *Table) Map(fn func(i int, row []string) []string) (*Table, error) {
	rows := make([][]string, 0, len(t.rows))
	for i := range t.rows {
		r := fn(i, t.Row(i))
		if len(r) != len(t.cols) {
			return nil, fmt.Errorf("row %d: %w", i+1, ErrLengthMismatch)
		}
		rows = append(rows, r)
	}
	return NewTyped(t.cols, rows)
}

// Filter returns a new table holding the rows for which keep returns true,
// in their original order.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := &Table{
		cols:  t.Columns(),
		index: make(map[string]int, len(t.cols)),
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	for i := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, t.Row(i))
		}
	}
	return out
}

// Equal reports whether both tables have the same schema and cells.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Len() != o.Len() || len(t.cols) != len(o.cols) {
		return false
	}
	for i := range t.cols {
		if t.cols[i] != o.cols[i] {
			return false
		}
	}
	for i := range t.rows {
		for j := range t.rows[i] {
			if t.rows[i][j] != o.rows[i][j] {
				return false
			}
		}
	}
	return true
}
