package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // keep a developer's .env out of the test

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "atlas_inventory.csv", cfg.SourcePath)
	assert.Equal(t, "auto", cfg.SourceFormat)
	assert.Equal(t, "sqlite", cfg.StoreKind)
	assert.Equal(t, "collectwise.db", cfg.StoreDSN)
	assert.Equal(t, "none", cfg.MetricsBackend)
	assert.True(t, cfg.AutoIngest)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "8081")
	t.Setenv("CSV_PATH", "/data/in.csv")
	t.Setenv("STORE_KIND", "Postgres")
	t.Setenv("STORE_DSN", "postgres://localhost/db")
	t.Setenv("AUTO_INGEST", "false")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "/data/in.csv", cfg.SourcePath)
	assert.Equal(t, "postgres", cfg.StoreKind)
	assert.False(t, cfg.AutoIngest)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	p := filepath.Join(dir, "collectwise.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"CSV_PATH":"from-file.csv","SOURCE_FORMAT":"xlsx"}`), 0o644))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "from-file.csv", cfg.SourcePath)
	assert.Equal(t, "xlsx", cfg.SourceFormat)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.json")
	require.Error(t, err)
}

func TestLoad_RejectsUnknownStoreKind(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_KIND", "oracle")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StoreKind")
}

func TestParserOptions(t *testing.T) {
	cfg := &Config{SourceEncoding: "windows-1250", CSVDelimiter: ";", XLSXSheet: "Accounts"}
	opt := cfg.ParserOptions()

	assert.True(t, opt.Bool("has_header", false))
	assert.Equal(t, ';', opt.Rune("comma", ','))
	assert.Equal(t, "windows-1250", opt.String("encoding", ""))
	assert.Equal(t, "Accounts", opt.String("sheet", ""))
}
