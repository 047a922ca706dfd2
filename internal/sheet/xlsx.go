// Package sheet reads XLSX workbooks into string rows.
package sheet

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/enel-control/enel-cli/internal/textnorm"
)

// Options configures Read.
type Options struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // number of leading rows to skip
}

// Read parses an in-memory XLSX workbook and returns the selected sheet's rows.
func Read(data []byte, opts Options) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open workbook")
	}
	return readSheet(f, opts)
}

// ReadFile is Read for a workbook on disk.
func ReadFile(path string, opts Options) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open file")
	}
	return readSheet(f, opts)
}

func readSheet(f *xlsx.File, opts Options) ([][]string, error) {
	s, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range s.Rows {
		if i < opts.SkipRows || row == nil {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		s, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("sheet: %q not found", opts.SheetName)
		}
		return s, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("sheet: index %d out of range (workbook has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

// Header maps column names to indexes, ignoring case and accents.
type Header map[string]int

// NewHeader indexes a header row.
func NewHeader(row []string) Header {
	h := make(Header, len(row))
	for i, name := range row {
		k := textnorm.Key(name)
		if _, dup := h[k]; !dup && k != "" {
			h[k] = i
		}
	}
	return h
}

// Index returns the column of the first name present.
func (h Header) Index(names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := h[textnorm.Key(n)]; ok {
			return i, true
		}
	}
	return -1, false
}

// Cell returns row[i], or "" when the row is short or i is negative.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
