package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"collectwise/internal/config"
	"collectwise/internal/logging"

	// register all backends with the storage factory.
	_ "collectwise/internal/storage/all"
)

// main loads the config, initializes the store, ingests the configured
// source and serves the lookup API until SIGINT or SIGTERM.
func main() {
	cfgPath := flag.String("config", "", "optional config file (json, yaml, toml or env); environment overrides it")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fatalf("logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("collectwise: failed to start server")
		stop()
		os.Exit(1)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
