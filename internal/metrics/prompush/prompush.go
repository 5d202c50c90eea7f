// Package prompush implements metrics.Backend on a private Prometheus
// registry. The registry is exposed for scraping through Handler() and can be
// pushed to a Pushgateway on Flush(), which suits one-shot ingest runs that
// exit before any scrape.
package prompush

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"collectwise/internal/metrics"
)

// Backend holds one collector per known metric name. Observations for other
// names, or with a label missing, are ignored.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher // nil: scrape only

	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	labelNames map[string][]string
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend builds the registry. gatewayURL may be empty, in which case
// Flush is a no-op and the metrics are only served by Handler().
func NewBackend(job, gatewayURL string) (*Backend, error) {
	job = strings.TrimSpace(job)
	if job == "" {
		job = "collectwise"
	}

	b := &Backend{
		reg:        prometheus.NewRegistry(),
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		labelNames: map[string][]string{},
	}

	counter := func(name, help string, labels ...string) {
		b.counters[name] = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "collectwise", Name: name, Help: help}, labels)
		b.labelNames[name] = labels
	}
	histogram := func(name, help string, buckets []float64, labels ...string) {
		b.histograms[name] = prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "collectwise", Name: name, Help: help, Buckets: buckets}, labels)
		b.labelNames[name] = labels
	}

	counter(metrics.IngestRowsTotal, "Ingested rows by outcome.", "outcome")
	counter(metrics.IngestRunsTotal, "Ingestion runs by status.", "status")
	histogram(metrics.IngestRunDurationSeconds, "Ingestion run wall time.", prometheus.ExponentialBuckets(0.01, 4, 10), "status")
	counter(metrics.HTTPRequestsTotal, "HTTP requests served.", "route", "method", "status")
	histogram(metrics.HTTPRequestDuration, "HTTP request latency.", prometheus.DefBuckets, "route", "method")

	for _, c := range b.counters {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}
	for _, h := range b.histograms {
		if err := b.reg.Register(h); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}

	if gatewayURL = strings.TrimSpace(gatewayURL); gatewayURL != "" {
		b.pusher = push.New(gatewayURL, job).Gatherer(b.reg)
	}
	return b, nil
}

// values returns the label values for name in declaration order, or false if
// labels lacks one of them.
func (b *Backend) values(name string, labels metrics.Labels) ([]string, bool) {
	names := b.labelNames[name]
	out := make([]string, len(names))
	for i, n := range names {
		v, ok := labels[n]
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	c, ok := b.counters[name]
	if !ok || delta <= 0 {
		return
	}
	vals, ok := b.values(name, labels)
	if !ok {
		return
	}
	c.WithLabelValues(vals...).Add(delta)
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	h, ok := b.histograms[name]
	if !ok || value < 0 {
		return
	}
	vals, ok := b.values(name, labels)
	if !ok {
		return
	}
	h.WithLabelValues(vals...).Observe(value)
}

// Flush pushes the registry to the Pushgateway, replacing the job's group.
func (b *Backend) Flush() error {
	if b.pusher == nil {
		return nil
	}
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and embedding.
func (b *Backend) Gatherer() prometheus.Gatherer { return b.reg }
