// Command probe samples an ingestion source and reports how it would ingest,
// without opening the store.
//
// The source is any location the ingest CLI accepts (local path, file://,
// gs://, http(s)://). Only the first -rows records are read.
//
// Output is a human-readable report, or the Result as JSON with -json.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"collectwise/internal/config"
	"collectwise/internal/probe"
	"collectwise/internal/source"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// runMain returns the process exit code: 0 ok, 1 probe failure, 2 usage.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		format    = fs.String("format", "auto", "source format: auto|csv|xlsx|json")
		rows      = fs.Int("rows", 1000, "number of records to sample")
		delimiter = fs.String("delimiter", ",", "CSV field delimiter")
		encoding  = fs.String("encoding", "", "source charset (e.g. windows-1252); default UTF-8")
		sheet     = fs.String("sheet", "", "XLSX worksheet; default the first sheet")
		asJSON    = fs.Bool("json", false, "print the result as JSON")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: probe [flags] <location>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		fs.Usage()
		return 2
	}

	cfg := config.Config{SourceEncoding: *encoding, CSVDelimiter: *delimiter, XLSXSheet: *sheet}
	res, err := probe.Probe(ctx, probe.Options{
		Location: fs.Arg(0),
		Format:   *format,
		MaxRows:  *rows,
		Parser:   cfg.ParserOptions(),
		Opener:   &source.Opener{},
	})
	if err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(stderr, "probe: encode: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintln(stdout, res.Report())
	return 0
}
