// Package celltable models per-field cell tables and the typed selections
// taken from them.
package celltable

import (
	"fmt"
	"strconv"
	"strings"

	"gospatial/domain/core"
	"gospatial/domain/spatial"
)

// Default column names of the exported cell tables
const (
	DefaultCellIDColumn = "cell_id"
	DefaultXColumn      = "Centroid X µm"
	DefaultYColumn      = "Centroid Y µm"
)

// DetectionDropColumns are removed from detection tables before the join
var DetectionDropColumns = []string{"Class"}

// PhenotypeDropColumns are removed from phenotype tables before the join
var PhenotypeDropColumns = []string{"Image", "Name", "Class", "Parent", "ROI"}

// Row is one record as column -> raw cell text
type Row map[string]string

// Table is a named, header-ordered set of rows
type Table struct {
	Name    string
	Headers []string
	Rows    []Row
}

// NewTable builds a table from a header row and raw string rows
func NewTable(name string, headers []string, records [][]string) *Table {
	t := &Table{Name: name, Headers: make([]string, len(headers))}
	for i, h := range headers {
		t.Headers[i] = strings.TrimSpace(h)
	}
	t.Rows = make([]Row, 0, len(records))
	for _, rec := range records {
		row := make(Row, len(t.Headers))
		for j, cell := range rec {
			if j < len(t.Headers) {
				row[t.Headers[j]] = strings.TrimSpace(cell)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.Rows) }

// HasColumn reports whether the header contains name
func (t *Table) HasColumn(name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// RequireColumns returns ErrMissingColumn for the first absent column
func (t *Table) RequireColumns(names ...string) error {
	for _, n := range names {
		if n == "" {
			continue
		}
		if !t.HasColumn(n) {
			return core.NewMissingColumnError(t.Name, n)
		}
	}
	return nil
}

// Drop removes columns that are present; absent names are ignored
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := &Table{Name: t.Name}
	for _, h := range t.Headers {
		if !drop[h] {
			out.Headers = append(out.Headers, h)
		}
	}
	out.Rows = make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		nr := make(Row, len(out.Headers))
		for _, h := range out.Headers {
			if v, ok := row[h]; ok {
				nr[h] = v
			}
		}
		out.Rows[i] = nr
	}
	return out
}

// LeftJoin keeps every row of t and copies the right-hand columns of the first
// matching row of other on key. Columns present on both sides keep the left
// value. Unmatched rows get no right-hand values.
func (t *Table) LeftJoin(other *Table, key string) (*Table, error) {
	if err := t.RequireColumns(key); err != nil {
		return nil, err
	}
	if err := other.RequireColumns(key); err != nil {
		return nil, err
	}

	index := make(map[string]Row, len(other.Rows))
	for _, row := range other.Rows {
		k := row[key]
		if _, seen := index[k]; !seen {
			index[k] = row
		}
	}

	out := &Table{Name: t.Name, Headers: append([]string(nil), t.Headers...)}
	for _, h := range other.Headers {
		if !t.HasColumn(h) {
			out.Headers = append(out.Headers, h)
		}
	}
	out.Rows = make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		nr := make(Row, len(out.Headers))
		for k, v := range row {
			nr[k] = v
		}
		if match, ok := index[row[key]]; ok {
			for k, v := range match {
				if _, exists := nr[k]; !exists {
					nr[k] = v
				}
			}
		}
		out.Rows[i] = nr
	}
	return out, nil
}

// Filter returns the rows matching the predicate
func (t *Table) Filter(p spatial.PhenotypePredicate) []Row {
	var rows []Row
	for _, row := range t.Rows {
		if v, ok := row[p.Column]; ok && v == p.Value {
			rows = append(rows, row)
		}
	}
	return rows
}

// FirstValue returns the first non-empty value of a column
func (t *Table) FirstValue(column string) (string, bool) {
	for _, row := range t.Rows {
		if v := row[column]; v != "" {
			return v, true
		}
	}
	return "", false
}

// Columns names the coordinate and identifier columns of a cell table
type Columns struct {
	CellID string `json:"cell_id" yaml:"cell_id"`
	X      string `json:"x" yaml:"x"`
	Y      string `json:"y" yaml:"y"`
}

// DefaultColumns returns the column names of the standard exports
func DefaultColumns() Columns {
	return Columns{CellID: DefaultCellIDColumn, X: DefaultXColumn, Y: DefaultYColumn}
}

// WithDefaults fills empty names from DefaultColumns
func (c Columns) WithDefaults() Columns {
	d := DefaultColumns()
	if c.CellID == "" {
		c.CellID = d.CellID
	}
	if c.X == "" {
		c.X = d.X
	}
	if c.Y == "" {
		c.Y = d.Y
	}
	return c
}

// Points extracts the centroids of rows
func Points(table string, rows []Row, cols Columns) (spatial.PointSet, error) {
	ps := make(spatial.PointSet, len(rows))
	for i, row := range rows {
		x, err := parseFloat(table, row, cols.X)
		if err != nil {
			return nil, err
		}
		y, err := parseFloat(table, row, cols.Y)
		if err != nil {
			return nil, err
		}
		ps[i] = spatial.Point{X: x, Y: y}
	}
	return ps, nil
}

// Intensities extracts one numeric column, index-aligned with rows
func Intensities(table string, rows []Row, column string) (spatial.IntensityVector, error) {
	v := make(spatial.IntensityVector, len(rows))
	for i, row := range rows {
		f, err := parseFloat(table, row, column)
		if err != nil {
			return nil, err
		}
		v[i] = f
	}
	return v, nil
}

func parseFloat(table string, row Row, column string) (float64, error) {
	raw, ok := row[column]
	if !ok {
		return 0, core.NewMissingColumnError(table, column)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s column %q value %q: %v", core.ErrMalformedTable, table, column, raw, err)
	}
	return f, nil
}
