package ingest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"account_number", "balance", "client_name"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"X1", "12.5", "Atlas"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"X2", "", ""}))

	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}
