package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"collectwise/internal/config"
	"collectwise/internal/events"
	"collectwise/internal/ingest"
	"collectwise/internal/logging"
	"collectwise/internal/source"
	"collectwise/internal/storage"
	"collectwise/internal/telemetry"

	_ "collectwise/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(w io.Writer, defaultPath string) {
	fmt.Fprintln(w, "\nUsage: ingest [-config file] [path/to/source]")
	fmt.Fprintf(w, "       Default path: %s\n\n", defaultPath)
}

// runMain ingests one source into the configured store and prints a summary.
// Exit codes: 0 success, 1 runtime failure, 2 usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "optional config file (json, yaml, toml or env)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 1 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args()[1:], " "))
		usage(stderr, "atlas_inventory.csv")
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	path := cfg.SourcePath
	if fs.NArg() == 1 {
		path = fs.Arg(0)
	}

	// Logs go to stderr so stdout carries only the report.
	logger, err := logging.NewWithOutput(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return 1
	}

	rule := strings.Repeat("=", 60)
	fmt.Fprintln(stdout, rule)
	fmt.Fprintln(stdout, "CollectWise CSV Ingestion")
	fmt.Fprintln(stdout, rule)

	st, err := storage.Open(ctx, storage.Config{Kind: cfg.StoreKind, DSN: cfg.StoreDSN})
	if err != nil {
		fmt.Fprintf(stderr, "Ingestion failed: open store: %v\n", err)
		return 1
	}
	defer st.Close()

	tel := telemetry.Setup(ctx, cfg, logger)
	defer tel.Close()
	pub := events.New(cfg.RabbitMQURL, cfg.EventsExchange, logger)
	defer pub.Close()

	p := &ingest.Pipeline{
		Store:   st,
		Options: cfg.ParserOptions(),
		Logger:  logger,
		Metrics: tel.Backend,
		Events:  pub,
	}

	fmt.Fprintf(stdout, "\nProcessing: %s\n\n", path)
	stats, err := p.RunLocation(ctx, &source.Opener{Logger: logger}, path, cfg.SourceFormat)
	if errors.Is(err, source.ErrNotFound) {
		fmt.Fprintf(stderr, "\nError: CSV file not found at '%s'\n", path)
		usage(stderr, cfg.SourcePath)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Ingestion failed: %v\n", err)
		return 1
	}

	ingest.FormatSummary(stdout, stats)
	fmt.Fprintln(stdout, "\nIngestion complete!")
	return 0
}
