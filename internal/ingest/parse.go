package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"

	"collectwise/internal/config"
	"collectwise/internal/parser"
	"collectwise/internal/parser/csv"
	jsonparser "collectwise/internal/parser/json"
	"collectwise/internal/parser/xlsx"
	"collectwise/internal/source"
)

// ParseFn streams src into rows aligned to columns. Recoverable row defects
// go to onErr; the returned error ends the run.
type ParseFn func(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- *parser.Row,
	onErr func(line int, err error),
) error

// ParserFor returns the parser for format ("csv", "xlsx", "json", or "auto",
// which picks by the location's extension).
func ParserFor(format, location string) (ParseFn, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" || f == "auto" {
		f = source.Format(location)
	}
	switch f {
	case "csv":
		return csv.StreamCSVRows, nil
	case "xlsx":
		return xlsx.StreamXLSXRows, nil
	case "json":
		return jsonparser.StreamJSONRows, nil
	default:
		return nil, fmt.Errorf("ingest: unsupported source format %q", format)
	}
}
