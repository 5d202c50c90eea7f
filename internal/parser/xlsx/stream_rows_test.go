package xlsx

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/xuri/excelize/v2"

	"collectwise/internal/config"
	"collectwise/internal/parser"
)

func workbook(t *testing.T, sheet string, rows [][]any) io.ReadCloser {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			t.Fatalf("SetSheetName: %v", err)
		}
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return io.NopCloser(&buf)
}

func TestStreamXLSXRows_FirstSheet(t *testing.T) {
	t.Parallel()

	src := workbook(t, "Accounts", [][]any{
		{"Account Number", "Balance"},
		{"A1", "10.5"},
		{"A2"},
	})

	out := make(chan *parser.Row, 8)
	err := StreamXLSXRows(context.Background(), src, []string{"account_number", "debtor_name", "balance"}, config.Options{}, out, nil)
	close(out)
	if err != nil {
		t.Fatalf("StreamXLSXRows() err=%v", err)
	}

	var got []*parser.Row
	for r := range out {
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].V[0] != "A1" || got[0].V[1] != nil || got[0].V[2] != "10.5" || got[0].Line != 2 {
		t.Fatalf("row 0 = %#v line=%d", got[0].V, got[0].Line)
	}
	if got[1].V[0] != "A2" || got[1].V[2] != nil || got[1].Line != 3 {
		t.Fatalf("row 1 = %#v line=%d", got[1].V, got[1].Line)
	}
}

func TestStreamXLSXRows_MissingSheet(t *testing.T) {
	t.Parallel()

	src := workbook(t, "Sheet1", [][]any{{"account_number"}})
	out := make(chan *parser.Row, 1)
	err := StreamXLSXRows(context.Background(), src, []string{"account_number"}, config.Options{"sheet": "Nope"}, out, nil)
	if err == nil {
		t.Fatalf("expected error for missing sheet")
	}
}

func TestStreamXLSXRows_NotAWorkbook(t *testing.T) {
	t.Parallel()

	out := make(chan *parser.Row, 1)
	err := StreamXLSXRows(context.Background(), io.NopCloser(bytes.NewReader([]byte("a,b\n"))), []string{"a"}, nil, out, nil)
	if err == nil {
		t.Fatalf("expected error for non-xlsx input")
	}
}
