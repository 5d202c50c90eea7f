// Package telemetry selects and wires the configured metrics backend.
package telemetry

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"collectwise/internal/config"
	"collectwise/internal/metrics"
	"collectwise/internal/metrics/datadog"
	"collectwise/internal/metrics/prompush"
)

// Telemetry is the selected metrics backend plus its shutdown hook.
type Telemetry struct {
	Backend metrics.Backend

	// Handler serves /metrics; non-nil only for the Prometheus backend.
	Handler http.Handler

	close func()
}

// Close flushes (Prometheus) or stops and drains (Datadog) the backend.
func (t Telemetry) Close() {
	if t.close != nil {
		t.close()
	}
}

// Setup builds the backend named by cfg.MetricsBackend. A backend that fails
// to initialize degrades to metrics.Nop.
func Setup(ctx context.Context, cfg *config.Config, logger *logrus.Logger) Telemetry {
	nop := Telemetry{Backend: metrics.Nop}

	switch cfg.MetricsBackend {
	case "pushgateway":
		b, err := prompush.NewBackend(cfg.MetricsJob, cfg.PushgatewayURL)
		if err != nil {
			logger.WithError(err).Warn("metrics: prometheus backend unavailable; using nop")
			return nop
		}
		logger.WithFields(logrus.Fields{"backend": cfg.MetricsBackend, "url": cfg.PushgatewayURL, "job": cfg.MetricsJob}).Info("metrics: enabled")
		return Telemetry{
			Backend: b,
			Handler: b.Handler(),
			close: func() {
				if err := b.Flush(); err != nil {
					logger.WithError(err).Warn("metrics: push failed")
				}
			},
		}

	case "datadog":
		tags := datadog.ParseTagsCSV(cfg.MetricsTags)
		b, err := datadog.NewBackend(ctx, datadog.Options{JobName: cfg.MetricsJob, Tags: tags})
		if err != nil {
			logger.WithError(err).Warn("metrics: datadog backend unavailable; using nop")
			return nop
		}
		logger.WithFields(logrus.Fields{"backend": cfg.MetricsBackend, "job": cfg.MetricsJob, "tags": tags}).Info("metrics: enabled")
		return Telemetry{
			Backend: b,
			// Close stops the flush loop and submits what is still buffered.
			close: func() {
				if err := b.Close(); err != nil {
					logger.WithError(err).Warn("metrics: datadog close")
				}
			},
		}
	}
	return nop
}
