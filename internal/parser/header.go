package parser

import "strings"

// NormalizeHeader maps a raw header cell to its canonical column name:
// trimmed, BOM-stripped (first cell only), lower-cased, spaces replaced by
// underscores. hm overrides the result for exact trimmed matches.
func NormalizeHeader(h string, first bool, hm map[string]string) string {
	if HasEdgeSpace(h) {
		h = strings.TrimSpace(h)
	}
	if first {
		h = strings.TrimPrefix(h, "\uFEFF")
	}
	if mapped, ok := hm[h]; ok {
		return mapped
	}
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}

// ColumnIndex maps each target column to its position in hdr, or -1 when the
// header does not carry it.
func ColumnIndex(hdr []string, columns []string, hm map[string]string) []int {
	srcToIdx := make(map[string]int, len(hdr))
	for i, h := range hdr {
		name := NormalizeHeader(h, i == 0, hm)
		if _, dup := srcToIdx[name]; !dup {
			srcToIdx[name] = i
		}
	}
	colIx := make([]int, len(columns))
	for t, target := range columns {
		colIx[t] = -1
		if si, ok := srcToIdx[target]; ok {
			colIx[t] = si
		}
	}
	return colIx
}

// Fill copies rec into row.V using colIx. Missing positions (ragged rows) and
// empty values become nil; trim strips edge white space first.
func Fill(row *Row, rec []string, colIx []int, trim bool) {
	for t, si := range colIx {
		if si < 0 || si >= len(rec) {
			row.V[t] = nil
			continue
		}
		v := rec[si]
		if trim && HasEdgeSpace(v) {
			v = strings.TrimSpace(v)
		}
		if v == "" {
			row.V[t] = nil
		} else {
			row.V[t] = v
		}
	}
}
