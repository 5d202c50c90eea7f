// Package probe samples a source without touching the store and reports how
// it would ingest: detected format, per-column fill and uniqueness, duplicate
// account numbers and the validation defects of the sampled rows.
//
// Probing is bounded by row count; the rest of the source is never read.
package probe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"collectwise/internal/account"
	"collectwise/internal/config"
	"collectwise/internal/ingest"
	"collectwise/internal/parser"
	"collectwise/internal/source"
)

const (
	defaultMaxRows = 1000

	// distinctCap bounds the per-column distinct-value sets.
	distinctCap = 10000

	// maxListed bounds the duplicate keys and errors kept in a Result.
	maxListed = 20
)

// Options control a probe run.
type Options struct {
	// Location is any location source.Opener accepts.
	Location string
	// Format is "auto" (default), "csv", "xlsx" or "json".
	Format string
	// MaxRows is the sample size; <= 0 means 1000.
	MaxRows int
	// Parser is handed to the parser unchanged.
	Parser config.Options
	// Opener defaults to a zero source.Opener.
	Opener *source.Opener
}

// ColumnStats describes one account column over the sample.
type ColumnStats struct {
	Column   string `json:"column"`
	Filled   int    `json:"filled"`
	Distinct int    `json:"distinct"`
	// Capped means Distinct stopped counting at the cap.
	Capped bool `json:"capped,omitempty"`
}

// Result is the outcome of a probe.
type Result struct {
	Location    string `json:"location"`
	Format      string `json:"format"`
	SampledRows int    `json:"sampled_rows"`
	ValidRows   int    `json:"valid_rows"`
	InvalidRows int    `json:"invalid_rows"`
	// Truncated means the source had more rows than the sample.
	Truncated bool `json:"truncated"`

	DistinctKeys int `json:"distinct_keys"`
	// DuplicateKeys lists account numbers seen more than once (last
	// occurrence wins on ingest), sorted, at most 20.
	DuplicateKeys []string `json:"duplicate_keys"`

	Columns []ColumnStats `json:"columns"`
	// Errors are the first defects in line order, at most 20.
	Errors []string `json:"errors"`
}

type lineError struct {
	line int
	msg  string
}

// Probe samples opt.Location.
func Probe(ctx context.Context, opt Options) (Result, error) {
	format := strings.ToLower(strings.TrimSpace(opt.Format))
	if format == "" || format == "auto" {
		format = source.Format(opt.Location)
	}
	parse, err := ingest.ParserFor(format, opt.Location)
	if err != nil {
		return Result{}, err
	}
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	opener := opt.Opener
	if opener == nil {
		opener = &source.Opener{}
	}

	src, err := opener.Open(ctx, opt.Location)
	if err != nil {
		return Result{}, fmt.Errorf("probe: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		stopped   bool
		parseErrs []lineError
	)
	onErr := func(line int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			parseErrs = append(parseErrs, lineError{line, fmt.Sprintf("Row %d: Parse error - %v", line, err)})
		}
	}

	rows := make(chan *parser.Row, 64)
	parseDone := make(chan error, 1)
	go func() {
		defer close(rows)
		parseDone <- parse(runCtx, src, account.Columns, opt.Parser, rows, onErr)
	}()

	res := Result{Location: opt.Location, Format: format, DuplicateKeys: []string{}, Errors: []string{}}
	cols := newColumnCounters(account.Columns)
	keyCounts := make(map[string]int)
	var defects []lineError

	for r := range rows {
		if res.SampledRows >= maxRows {
			// One row past the limit proves there is more to read.
			res.Truncated = true
			r.Free()
			mu.Lock()
			stopped = true
			mu.Unlock()
			cancel()
			continue
		}
		res.SampledRows++
		cols.add(r.V)

		line := r.Line
		v := account.Validate(account.RawFromValues(r.V), line)
		r.Free()
		if !v.OK {
			res.InvalidRows++
			for _, msg := range v.Errors {
				defects = append(defects, lineError{line, msg})
			}
			continue
		}
		res.ValidRows++
		keyCounts[v.Account.AccountNumber]++
	}
	parseErr := <-parseDone

	if parseErr != nil && !(res.Truncated && errors.Is(parseErr, context.Canceled)) {
		return res, fmt.Errorf("probe: %w", parseErr)
	}

	mu.Lock()
	res.SampledRows += len(parseErrs)
	res.InvalidRows += len(parseErrs)
	defects = append(defects, parseErrs...)
	mu.Unlock()

	sort.SliceStable(defects, func(i, j int) bool { return defects[i].line < defects[j].line })
	for i, d := range defects {
		if i == maxListed {
			break
		}
		res.Errors = append(res.Errors, d.msg)
	}

	res.DistinctKeys = len(keyCounts)
	for k, n := range keyCounts {
		if n > 1 {
			res.DuplicateKeys = append(res.DuplicateKeys, k)
		}
	}
	sort.Strings(res.DuplicateKeys)
	if len(res.DuplicateKeys) > maxListed {
		res.DuplicateKeys = res.DuplicateKeys[:maxListed]
	}

	res.Columns = cols.stats()
	return res, nil
}

type columnCounters struct {
	names    []string
	filled   []int
	distinct []map[string]struct{}
	capped   []bool
}

func newColumnCounters(names []string) *columnCounters {
	c := &columnCounters{
		names:    names,
		filled:   make([]int, len(names)),
		distinct: make([]map[string]struct{}, len(names)),
		capped:   make([]bool, len(names)),
	}
	for i := range c.distinct {
		c.distinct[i] = make(map[string]struct{})
	}
	return c
}

func (c *columnCounters) add(v []any) {
	for i := range c.names {
		if i >= len(v) || v[i] == nil {
			continue
		}
		c.filled[i]++
		if c.capped[i] {
			continue
		}
		s := fmt.Sprint(v[i])
		if _, ok := c.distinct[i][s]; ok {
			continue
		}
		if len(c.distinct[i]) >= distinctCap {
			c.capped[i] = true
			continue
		}
		c.distinct[i][s] = struct{}{}
	}
}

func (c *columnCounters) stats() []ColumnStats {
	out := make([]ColumnStats, len(c.names))
	for i, n := range c.names {
		out[i] = ColumnStats{Column: n, Filled: c.filled[i], Distinct: len(c.distinct[i]), Capped: c.capped[i]}
	}
	return out
}

// Report renders r for a terminal.
func (r Result) Report() string {
	var b strings.Builder

	more := ""
	if r.Truncated {
		more = " (source has more rows)"
	}
	fmt.Fprintf(&b, "probe: %s\tformat=%s\n", r.Location, r.Format)
	fmt.Fprintf(&b, "sampled_rows=%d%s valid=%d invalid=%d\n", r.SampledRows, more, r.ValidRows, r.InvalidRows)
	fmt.Fprintf(&b, "distinct_keys=%d duplicate_keys=%d\n", r.DistinctKeys, len(r.DuplicateKeys))

	if r.SampledRows > 0 {
		fmt.Fprintf(&b, "\n%-15s\t%-7s\t%-7s\tfill\tcapped\n", "col", "filled", "unique")
		for _, c := range r.Columns {
			fmt.Fprintf(&b, "%-15s\t%-7d\t%-7d\t%.1f%%\t%t\n",
				c.Column, c.Filled, c.Distinct, 100*float64(c.Filled)/float64(r.SampledRows), c.Capped)
		}
	}

	if len(r.DuplicateKeys) > 0 {
		fmt.Fprintf(&b, "\nduplicate account numbers: %s\n", strings.Join(r.DuplicateKeys, ", "))
	}
	if len(r.Errors) > 0 {
		b.WriteString("\nerrors:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
