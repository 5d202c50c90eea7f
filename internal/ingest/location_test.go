package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectwise/internal/source"
)

func TestRunLocation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "accounts.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("account_number,balance\nA1,1\nA2,2\n"), 0o644))
	xlsxPath := filepath.Join(dir, "accounts.xlsx")
	require.NoError(t, os.WriteFile(xlsxPath, workbook(t), 0o644))

	st := newStore(t, "")
	p := &Pipeline{Store: st}

	stats, err := p.RunLocation(context.Background(), nil, csvPath, "auto")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)

	stats, err = p.RunLocation(context.Background(), &source.Opener{}, "file://"+xlsxPath, "auto")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, int64(4), stats.CountAfter)
	assert.Nil(t, p.Parse, "the caller's pipeline is not modified")

	jsonPath := filepath.Join(dir, "accounts.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"accounts": [{"account_number": "A1", "balance": 99.5}, {"account_number": ""}]}`), 0o644))
	stats, err = p.RunLocation(context.Background(), nil, jsonPath, "auto")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated+stats.Inserted)
	assert.Equal(t, []string{"Row 2: Missing required field 'account_number'"}, stats.Errors)
	assert.Equal(t, "99.5", balance(t, st, "A1"))
}

func TestRunLocation_Errors(t *testing.T) {
	t.Parallel()

	st := newStore(t, "")
	p := &Pipeline{Store: st}

	_, err := p.RunLocation(context.Background(), nil, filepath.Join(t.TempDir(), "missing.csv"), "csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrNotFound)

	_, err = p.RunLocation(context.Background(), nil, "accounts.csv", "parquet")
	assert.ErrorContains(t, err, "unsupported source format")
	assert.Equal(t, 0, st.flushes)
}
