// Package ingest drives one ingestion run: parse, validate, dedupe within the
// run, upsert, and flush once at the end.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"collectwise/internal/account"
	"collectwise/internal/config"
	"collectwise/internal/events"
	"collectwise/internal/logging"
	"collectwise/internal/metrics"
	"collectwise/internal/parser"
	"collectwise/internal/parser/csv"
	"collectwise/internal/storage"
)

// ErrSource marks a run aborted because the source could not be read.
var ErrSource = errors.New("ingest: source unreadable")

// Stats summarizes one run.
//
// Inserted and Updated are run-local: a key counts as inserted the first time
// this run sees it, even when the store already held it from an earlier run.
// Total == Inserted + Updated + Skipped.
type Stats struct {
	RunID       string        `json:"run_id"`
	Total       int           `json:"total"`
	Inserted    int           `json:"inserted"`
	Updated     int           `json:"updated"`
	Skipped     int           `json:"skipped"`
	Errors      []string      `json:"errors"`
	CountBefore int64         `json:"count_before"`
	CountAfter  int64         `json:"count_after"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// Pipeline holds the collaborators of a run. Store is required; everything
// else has a default.
type Pipeline struct {
	Store storage.AccountStore

	// Parse defaults to the CSV parser.
	Parse   ParseFn
	Options config.Options

	Logger  logging.Logger
	Metrics metrics.Backend
	Events  events.Publisher

	// Buffer is the parser-to-loader channel size (default 256).
	Buffer int

	now func() time.Time
}

type lineError struct {
	line int
	msg  string
}

// Run ingests src and closes it.
//
// Row-level problems (validation defects, unreadable records, failed upserts)
// are counted as skipped and reported in Stats.Errors, ordered by line. The
// returned error is non-nil only when the run itself failed: the store was
// not initialized, the source could not be read (ErrSource), ctx was
// canceled, or the final Flush failed. Rows are not flushed after a failed run.
func (p *Pipeline) Run(ctx context.Context, src io.ReadCloser) (stats Stats, err error) {
	now := p.now
	if now == nil {
		now = time.Now
	}
	start := now()
	stats = Stats{RunID: uuid.NewString(), StartedAt: start.UTC(), Errors: []string{}}

	defer func() {
		stats.Duration = now().Sub(start)
		p.finish(ctx, stats, err)
	}()

	if p.Store == nil {
		_ = src.Close()
		return stats, errors.New("ingest: nil store")
	}
	if stats.CountBefore, err = p.Store.Count(ctx); err != nil {
		_ = src.Close()
		return stats, fmt.Errorf("ingest: count before run: %w", err)
	}

	parse := p.Parse
	if parse == nil {
		parse = csv.StreamCSVRows
	}
	buffer := p.Buffer
	if buffer <= 0 {
		buffer = 256
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		parseErrs []lineError
	)
	onErr := func(line int, err error) {
		mu.Lock()
		parseErrs = append(parseErrs, lineError{line, fmt.Sprintf("Row %d: Parse error - %v", line, err)})
		mu.Unlock()
	}

	rows := make(chan *parser.Row, buffer)
	parseDone := make(chan error, 1)
	go func() {
		defer close(rows)
		parseDone <- parse(runCtx, src, account.Columns, p.Options, rows, onErr)
	}()

	var (
		seen    = make(map[string]struct{})
		rowErrs []lineError
		fatal   error
	)
	for r := range rows {
		if fatal != nil {
			r.Free()
			continue
		}
		line := r.Line
		res := account.Validate(account.RawFromValues(r.V), line)
		r.Free()

		stats.Total++
		if !res.OK {
			stats.Skipped++
			for _, msg := range res.Errors {
				rowErrs = append(rowErrs, lineError{line, msg})
			}
			continue
		}

		key := res.Account.AccountNumber
		_, dup := seen[key]
		seen[key] = struct{}{}

		if err := p.Store.Upsert(runCtx, *res.Account); err != nil {
			if errors.Is(err, storage.ErrNotInitialized) {
				fatal = err
				cancel()
				continue
			}
			stats.Skipped++
			rowErrs = append(rowErrs, lineError{line, fmt.Sprintf("Row %d: Database error - %v", line, err)})
			continue
		}
		if dup {
			stats.Updated++
		} else {
			stats.Inserted++
		}
	}
	parseErr := <-parseDone

	mu.Lock()
	stats.Total += len(parseErrs)
	stats.Skipped += len(parseErrs)
	rowErrs = append(rowErrs, parseErrs...)
	mu.Unlock()

	sort.SliceStable(rowErrs, func(i, j int) bool { return rowErrs[i].line < rowErrs[j].line })
	for _, e := range rowErrs {
		stats.Errors = append(stats.Errors, e.msg)
	}

	switch {
	case fatal != nil:
		return stats, fmt.Errorf("ingest: %w", fatal)
	case ctx.Err() != nil:
		return stats, fmt.Errorf("ingest: %w", ctx.Err())
	case parseErr != nil:
		return stats, fmt.Errorf("%w: %w", ErrSource, parseErr)
	}

	if err := p.Store.Flush(ctx); err != nil {
		return stats, fmt.Errorf("ingest: flush: %w", err)
	}
	if stats.CountAfter, err = p.Store.Count(ctx); err != nil {
		return stats, fmt.Errorf("ingest: count after run: %w", err)
	}
	return stats, nil
}

// finish records metrics, logs the outcome and publishes the completion
// event. Publishing is best effort.
func (p *Pipeline) finish(ctx context.Context, stats Stats, runErr error) {
	m := metrics.OrNop(p.Metrics)
	status := "ok"
	if runErr != nil {
		status = "error"
	}

	m.IncCounter(metrics.IngestRowsTotal, float64(stats.Inserted), metrics.Labels{"outcome": "inserted"})
	m.IncCounter(metrics.IngestRowsTotal, float64(stats.Updated), metrics.Labels{"outcome": "updated"})
	m.IncCounter(metrics.IngestRowsTotal, float64(stats.Skipped), metrics.Labels{"outcome": "skipped"})
	m.IncCounter(metrics.IngestRunsTotal, 1, metrics.Labels{"status": status})
	m.ObserveHistogram(metrics.IngestRunDurationSeconds, stats.Duration.Seconds(), metrics.Labels{"status": status})

	if p.Logger != nil {
		if runErr != nil {
			p.Logger.Printf("ingest: run=%s failed after %d rows: %v", stats.RunID, stats.Total, runErr)
		} else {
			p.Logger.Printf("ingest: run=%s total=%d inserted=%d updated=%d skipped=%d before=%d after=%d took=%s",
				stats.RunID, stats.Total, stats.Inserted, stats.Updated, stats.Skipped, stats.CountBefore, stats.CountAfter, stats.Duration)
		}
	}

	if p.Events == nil {
		return
	}
	evt := CompletedEvent{Stats: stats, Status: status}
	if runErr != nil {
		evt.Error = runErr.Error()
	}
	// The run's ctx may already be canceled; the event still goes out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.Events.Publish(pubCtx, events.RoutingIngestCompleted, evt); err != nil && p.Logger != nil {
		p.Logger.Printf("ingest: run=%s publish %s: %v", stats.RunID, events.RoutingIngestCompleted, err)
	}
}

// CompletedEvent is the body of the ingest.completed event.
type CompletedEvent struct {
	Stats
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
