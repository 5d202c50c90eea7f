// Package metrics is the backend-agnostic metrics facade used by the ingest
// pipeline and the HTTP API. Concrete backends live in subpackages.
package metrics

import (
	"sort"
	"strings"
)

// Metric names emitted by this service.
const (
	IngestRowsTotal          = "ingest_rows_total"           // labels: outcome=inserted|updated|skipped
	IngestRunsTotal          = "ingest_runs_total"           // labels: status=ok|error
	IngestRunDurationSeconds = "ingest_run_duration_seconds" // labels: status
	HTTPRequestsTotal        = "http_requests_total"         // labels: route, method, status
	HTTPRequestDuration      = "http_request_duration_seconds"
)

// Labels are metric dimensions. Backends must not retain the map.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}
func (nop) Flush() error                             { return nil }

// Nop discards everything.
var Nop Backend = nop{}

// OrNop returns b, or Nop when b is nil.
func OrNop(b Backend) Backend {
	if b == nil {
		return Nop
	}
	return b
}

// Key renders name and labels as a stable map key ("name|k1=v1,k2=v2").
func Key(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('|')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

// SplitKey is the inverse of Key.
func SplitKey(key string) (string, Labels) {
	name, rest, ok := strings.Cut(key, "|")
	if !ok || rest == "" {
		return name, nil
	}
	labels := Labels{}
	for _, kv := range strings.Split(rest, ",") {
		k, v, _ := strings.Cut(kv, "=")
		labels[k] = v
	}
	return name, labels
}
