// Package table reads delimited and spreadsheet cell tables and exposes
// per-field inputs as ports.CellTableSource implementations.
package table

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gospatial/domain/celltable"
	"gospatial/internal"

	"github.com/xuri/excelize/v2"
)

// Supported file types
const (
	FileTypeTSV  = "tsv"
	FileTypeCSV  = "csv"
	FileTypeXLSX = "xlsx"
)

// Reader reads one table file, choosing the format from its extension
type Reader struct {
	filePath string
	fileType string
	logger   *internal.Logger
}

// NewReader creates a reader for path. Unknown extensions are read as TSV,
// the format of the detection and phenotype exports.
func NewReader(path string, logger *internal.Logger) *Reader {
	return &Reader{filePath: path, fileType: FileType(path), logger: internal.OrDefault(logger).With("table")}
}

// FileType maps a path's extension to one of the supported types
func FileType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FileTypeCSV
	case ".xlsx", ".xlsm":
		return FileTypeXLSX
	default:
		return FileTypeTSV
	}
}

// IsTableFile reports whether path has an extension the reader understands
func IsTableFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".txt", ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// Read loads the file into a table named after its path
func (r *Reader) Read() (*celltable.Table, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	start := time.Now()
	var (
		rows [][]string
		err  error
	)
	switch r.fileType {
	case FileTypeXLSX:
		rows, err = r.readExcelRows()
	case FileTypeCSV:
		rows, err = r.readDelimitedRows(',')
	default:
		rows, err = r.readDelimitedRows('\t')
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s has no header row", r.filePath)
	}

	t := celltable.NewTable(r.filePath, rows[0], rows[1:])
	r.logger.Debug("%s read in %.2fms (%d columns, %d rows)",
		r.filePath, float64(time.Since(start).Nanoseconds())/1e6, len(t.Headers), t.Len())
	return t, nil
}

// readExcelRows reads the first sheet of a workbook
func (r *Reader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s contains no sheets", r.filePath)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func (r *Reader) readDelimitedRows(comma rune) ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file: %w", strings.ToUpper(r.fileType), err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", strings.ToUpper(r.fileType), err)
	}
	return rows, nil
}

// ReadFile is shorthand for NewReader(path, logger).Read()
func ReadFile(path string, logger *internal.Logger) (*celltable.Table, error) {
	return NewReader(path, logger).Read()
}
