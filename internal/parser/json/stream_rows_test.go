package json

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"
	"testing"

	"collectwise/internal/config"
	"collectwise/internal/parser"
)

var testColumns = []string{"account_number", "balance", "status"}

// runStream runs StreamJSONRows in a goroutine, closes out when done, and
// returns (rows, err, onErr calls as "line=N err=msg").
func runStream(ctx context.Context, input string, opts config.Options) (rows []*parser.Row, err error, errCalls []string) {
	out := make(chan *parser.Row, 16)
	onErr := func(line int, e error) {
		errCalls = append(errCalls, fmt.Sprintf("line=%d err=%s", line, e.Error()))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		err = StreamJSONRows(ctx, io.NopCloser(strings.NewReader(input)), testColumns, opts, out, onErr)
		close(out)
	}()

	for r := range out {
		rows = append(rows, r)
	}
	<-done
	return rows, err, errCalls
}

func values(r *parser.Row) []any { return append([]any(nil), r.V...) }

func TestStreamJSONRows_RootArrayAndTrailingNDJSON(t *testing.T) {
	t.Parallel()

	input := `[
		{"account_number": " A1 ", "balance": 10.50, "status": "open"},
		null,
		{"Account Number": "A2", "balance": "7", "status": ""}
	]
	{"account_number": "A3", "balance": 3, "status": ["past", "due"]}`

	rows, err, calls := runStream(context.Background(), input, config.Options{"array_join_separator": "/"})
	if err != nil {
		t.Fatalf("StreamJSONRows() err=%v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("onErr calls=%v, want none", calls)
	}
	want := [][]any{
		{"A1", "10.50", "open"},
		{"A2", "7", nil},
		{"A3", "3", "past/due"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows=%d, want %d", len(rows), len(want))
	}
	for i, r := range rows {
		if r.Line != i+1 {
			t.Errorf("rows[%d].Line=%d, want %d", i, r.Line, i+1)
		}
		if got := values(r); !reflect.DeepEqual(got, want[i]) {
			t.Errorf("rows[%d].V=%#v, want %#v", i, got, want[i])
		}
	}
}

func TestStreamJSONRows_EnvelopeStreamsFirstArrayField(t *testing.T) {
	t.Parallel()

	input := `{"exported_at": "2026-01-01", "accounts": [{"account_number": "E1"}, {"account_number": "E2"}], "next": {"cursor": [1, 2]}}`

	rows, err, _ := runStream(context.Background(), input, nil)
	if err != nil {
		t.Fatalf("StreamJSONRows() err=%v", err)
	}
	if len(rows) != 2 || rows[0].V[0] != "E1" || rows[1].V[0] != "E2" {
		t.Fatalf("rows=%v, want E1,E2", rows)
	}
}

func TestStreamJSONRows_SingleObject(t *testing.T) {
	t.Parallel()

	rows, err, _ := runStream(context.Background(), `{"account_number": "S1", "balance": true, "extra": {"a": 1}}`, nil)
	if err != nil {
		t.Fatalf("StreamJSONRows() err=%v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d, want 1", len(rows))
	}
	if got := values(rows[0]); !reflect.DeepEqual(got, []any{"S1", "true", nil}) {
		t.Fatalf("V=%#v", got)
	}
}

func TestStreamJSONRows_HeaderMap(t *testing.T) {
	t.Parallel()

	opts := config.Options{"header_map": map[string]any{"acct": "account_number"}}
	rows, err, _ := runStream(context.Background(), `[{"acct": "H1", "balance": 1}]`, opts)
	if err != nil {
		t.Fatalf("StreamJSONRows() err=%v", err)
	}
	if len(rows) != 1 || rows[0].V[0] != "H1" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestStreamJSONRows_RecordDefectsAreRowLevel(t *testing.T) {
	t.Parallel()

	input := `[{"account_number": "A1"}, "oops", {"account_number": "A3", "status": {"code": 1}}, {"account_number": "A4", "status": [1]}, {"account_number": "A5"}]`

	rows, err, calls := runStream(context.Background(), input, nil)
	if err != nil {
		t.Fatalf("StreamJSONRows() err=%v", err)
	}
	wantCalls := []string{
		"line=2 err=record is a string, not an object",
		`line=3 err=field "status": an object is not a scalar`,
		`line=4 err=field "status": array of non-string values`,
	}
	if !reflect.DeepEqual(calls, wantCalls) {
		t.Fatalf("onErr calls=%q, want %q", calls, wantCalls)
	}
	if len(rows) != 2 || rows[0].Line != 1 || rows[1].Line != 5 {
		t.Fatalf("rows=%v, want lines 1 and 5", rows)
	}
}

func TestStreamJSONRows_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"scalar root", `42`, "unsupported root token"},
		{"truncated array", `[{"account_number": "A1"}, {"account_number": `, "decode record 2"},
		{"garbage after array", `[] nope`, "decode record 1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err, _ := runStream(context.Background(), tc.input, nil)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err=%v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestStreamJSONRows_Empty(t *testing.T) {
	t.Parallel()

	rows, err, _ := runStream(context.Background(), "", nil)
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows=%d err=%v, want 0, nil", len(rows), err)
	}
}

func TestStreamJSONRows_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows, err, _ := runStream(ctx, `[{"account_number": "A1"}]`, nil)
	if err != context.Canceled {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows=%d, want 0", len(rows))
	}
}
