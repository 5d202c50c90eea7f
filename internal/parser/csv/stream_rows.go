package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"collectwise/internal/config"
	"collectwise/internal/parser"
)

// decodeReader wraps r with a charset decoder when opt "encoding" names a
// non-UTF-8 encoding (WHATWG names: "windows-1250", "iso-8859-2", ...).
func decodeReader(r io.Reader, name string) (io.Reader, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return r, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("csv: unsupported encoding %q: %w", name, err)
	}
	return enc.NewDecoder().Reader(r), nil
}

// StreamCSVRows streams CSV into pooled *parser.Row objects aligned to the
// target 'columns' order.
//
// Options:
//   - has_header (true): first record names the columns.
//   - comma (','), lazy_quotes (false), trim_space (true).
//   - header_map: raw header -> column name overrides.
//   - encoding: source charset, decoded to UTF-8 before parsing.
//
// Rows with a different field count than the header are accepted; missing
// trailing columns are nil. Malformed records (csv.ParseError) are reported
// through onErr with the line they start on and skipped. Any other read error,
// and any failure to read the header, ends the stream and is returned without
// calling onErr.
// An empty source yields no rows and no error.
//
// On ctx cancellation in-flight rows are dropped, not re-pooled.
func StreamCSVRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- *parser.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	hasHeader := opt.Bool("has_header", true)
	comma := opt.Rune("comma", ',')
	trim := opt.Bool("trim_space", true)
	hm := opt.StringMap("header_map")
	lazy := opt.Bool("lazy_quotes", false)

	r, err := decodeReader(src, opt.String("encoding", ""))
	if err != nil {
		return err
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = lazy
	cr.FieldsPerRecord = -1

	// line is the physical line a record starts on, so a quoted field that
	// spans lines or a skipped blank line does not shift later rows.
	var line int
	readRec := func() ([]string, error) {
		rec, err := cr.Read()
		if err == nil {
			line, _ = cr.FieldPos(0)
			return rec, nil
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			line = pe.StartLine
		}
		return nil, err
	}

	var colIx []int
	if hasHeader {
		hdr, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("csv: read header: %w", err)
		}
		colIx = parser.ColumnIndex(hdr, columns, hm)
	} else {
		colIx = make([]int, len(columns))
		for i := range colIx {
			colIx[i] = i
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				if onErr != nil {
					onErr(line, fmt.Errorf("csv read: %w", err))
				}
				continue
			}
			return fmt.Errorf("csv: read after line %d: %w", line, err)
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
}
