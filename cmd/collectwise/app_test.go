package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"collectwise/internal/config"
	"collectwise/internal/source"
)

func testConfig(t *testing.T, csv string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "atlas_inventory.csv")
	if csv != "" {
		if err := os.WriteFile(src, []byte(csv), 0o644); err != nil {
			t.Fatalf("write csv: %v", err)
		}
	}
	return &config.Config{
		Port:            "0",
		SourcePath:      src,
		SourceFormat:    "auto",
		AutoIngest:      true,
		StoreKind:       "sqlite",
		StoreDSN:        filepath.Join(dir, "collectwise.db"),
		MetricsBackend:  "none",
		ShutdownTimeout: 2 * time.Second,
	}
}

func testLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	return l, &buf
}

func TestBoot_IngestsBeforeServing(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "account_number,debtor_name,balance\nACC001,Jane,10.5\nACC002,,x\n")
	logger, logs := testLogger()

	a, err := boot(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	defer a.close()

	n, err := a.store.Count(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v; want 1", n, err)
	}
	if _, err := os.Stat(cfg.StoreDSN); err != nil {
		t.Fatalf("store image not written: %v", err)
	}
	if !strings.Contains(logs.String(), "database initialized") {
		t.Fatalf("missing boot log; got:\n%s", logs.String())
	}
}

func TestBoot_MissingSourceFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "")
	logger, _ := testLogger()

	_, err := boot(context.Background(), cfg, logger)
	if !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("boot err = %v; want source.ErrNotFound", err)
	}
}

func TestBoot_AutoIngestDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "")
	cfg.AutoIngest = false
	logger, _ := testLogger()

	a, err := boot(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	defer a.close()
}

func TestBoot_UnknownStoreKind(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "account_number\nA1\n")
	cfg.StoreKind = "bogus"
	logger, _ := testLogger()

	if _, err := boot(context.Background(), cfg, logger); err == nil || !strings.Contains(err.Error(), "unsupported kind") {
		t.Fatalf("boot err = %v; want unsupported kind", err)
	}
}

func TestServe_LookupAndGracefulShutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "account_number,balance\nACC001,99.99\n")
	logger, _ := testLogger()

	a, err := boot(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	defer a.close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln, cfg.ShutdownTimeout) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/accounts/ACC001")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; body %s", resp.StatusCode, body)
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["balance"] != 99.99 {
		t.Fatalf("balance = %v; want 99.99", got["balance"])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
