// Package parser holds the row type shared by the source parsers.
//
// Parsers stream pooled *Row values aligned to a caller-supplied column list
// (account.Columns in this service) so the ingestion loop never sees the
// input's own column order.
package parser

import (
	"sync"
	"unicode"
	"unicode/utf8"
)

// Row is a pooled positional row.
//
// Ownership contract:
//   - Exactly one goroutine owns a Row at a time; sending it on a channel
//     transfers ownership.
//   - The final consumer calls Free once it no longer references r or r.V.
//   - Cancellation paths call Drop instead so a row still being read
//     downstream is never handed back to the parser.
type Row struct {
	// V holds one value per target column: nil when the column is absent or
	// empty, otherwise a string.
	V []any

	// Line is the 1-based record number in the source, header included.
	Line int
}

var rowPool sync.Pool

// GetRow returns a zeroed Row with len(V) == colCount.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns r to the pool.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop releases r without pooling it.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}

// HasEdgeSpace reports whether s starts or ends with white space, so hot
// loops only call strings.TrimSpace when it would change something.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(first) || unicode.IsSpace(last)
}
