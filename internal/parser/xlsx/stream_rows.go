// Package xlsx streams rows from an Excel workbook with the same contract as
// the CSV parser.
package xlsx

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"collectwise/internal/config"
	"collectwise/internal/parser"
)

// StreamXLSXRows streams one worksheet into pooled *parser.Row objects aligned
// to columns.
//
// Options:
//   - sheet: worksheet name; defaults to the first sheet.
//   - has_header (true), trim_space (true), header_map.
//
// Row numbers are worksheet record numbers (header = 1). Cells that cannot be
// read are reported through onErr and the row is skipped. Opening the workbook
// or a missing sheet is fatal.
func StreamXLSXRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- *parser.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	f, err := excelize.OpenReader(src)
	if err != nil {
		return fmt.Errorf("xlsx: open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := opt.String("sheet", "")
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return fmt.Errorf("xlsx: workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("xlsx: open sheet %q: %w", sheet, err)
	}
	defer func() { _ = rows.Close() }()

	hasHeader := opt.Bool("has_header", true)
	trim := opt.Bool("trim_space", true)
	hm := opt.StringMap("header_map")

	var colIx []int
	if !hasHeader {
		colIx = make([]int, len(columns))
		for i := range colIx {
			colIx[i] = i
		}
	}

	line := 0
	for rows.Next() {
		line++
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := rows.Columns()
		if err != nil {
			if colIx == nil {
				return fmt.Errorf("xlsx: read header: %w", err)
			}
			if onErr != nil {
				onErr(line, fmt.Errorf("xlsx read: %w", err))
			}
			continue
		}

		if colIx == nil {
			colIx = parser.ColumnIndex(rec, columns, hm)
			continue
		}
		if isBlank(rec) {
			continue
		}

		row := parser.GetRow(len(columns))
		row.Line = line
		parser.Fill(row, rec, colIx, trim)

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("xlsx: iterate sheet %q: %w", sheet, err)
	}
	return nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if v != "" {
			return false
		}
	}
	return true
}
