// Package tabular reads per-game CSV and Excel tables and turns them into
// validation inputs through a metric catalog.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"hoopval/domain/core"
	"hoopval/internal"
)

// Format names a supported file type
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Row is one data row keyed by trimmed header
type Row map[string]string

// Table is a header row plus data rows
type Table struct {
	Headers []string
	Rows    []Row
}

// HasColumn reports whether the header row contains name
func (t *Table) HasColumn(name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// FormatOf picks the format from the file extension; anything but .csv is
// read as a workbook
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}
	return FormatXLSX
}

// Reader reads tables from CSV or XLSX sources
type Reader struct {
	sheet  string
	logger *internal.Logger
}

// NewReader creates a reader. sheet selects the workbook sheet; empty means
// the first sheet.
func NewReader(sheet string, logger *internal.Logger) *Reader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Reader{sheet: sheet, logger: logger}
}

// ReadFile reads the table at path, choosing the format by extension
func (r *Reader) ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", core.ErrConfiguration, path, err)
	}
	defer f.Close()
	return r.Read(f, FormatOf(path))
}

// Read reads a table in the given format
func (r *Reader) Read(src io.Reader, format Format) (*Table, error) {
	start := time.Now()

	var rows [][]string
	var err error
	switch format {
	case FormatCSV:
		rows, err = r.readCSV(src)
	case FormatXLSX:
		rows, err = r.readXLSX(src)
	default:
		return nil, core.NewConfigurationError("format", fmt.Sprintf("unsupported file type %q", format))
	}
	if err != nil {
		return nil, err
	}

	table, err := processRows(rows)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("%s table read in %v (%d columns, %d rows)", format, time.Since(start), len(table.Headers), len(table.Rows))
	return table, nil
}

func (r *Reader) readCSV(src io.Reader) ([][]string, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read CSV: %v", core.ErrConfiguration, err)
	}
	return rows, nil
}

func (r *Reader) readXLSX(src io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", core.ErrConfiguration, err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", core.ErrConfiguration, sheet, err)
	}
	return rows, nil
}

// processRows converts raw string rows into a Table; short rows leave the
// missing cells empty
func processRows(rows [][]string) (*Table, error) {
	if len(rows) < 2 {
		return nil, core.NewConfigurationError("table", "need a header row and at least one data row")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	table := &Table{Headers: headers, Rows: make([]Row, 0, len(rows)-1)}
	for _, raw := range rows[1:] {
		if blank(raw) {
			continue
		}
		row := make(Row, len(headers))
		for j, cell := range raw {
			if j < len(headers) {
				row[headers[j]] = strings.TrimSpace(cell)
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func blank(raw []string) bool {
	for _, cell := range raw {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
