package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventledger"

// Recorder holds the ledger collectors. It implements ledger.OperationLogger.
type Recorder struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	OperationsTotal      *prometheus.CounterVec
	OperationAmountCents *prometheus.CounterVec
	CompensationFailures *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Ledger operations by outcome",
			},
			[]string{"operation", "status"},
		),
		OperationAmountCents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_amount_cents_total",
				Help:      "Cents moved by successful ledger operations",
			},
			[]string{"operation"},
		),
		CompensationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensation_failures_total",
				Help:      "Compensating actions that could not be applied",
			},
			[]string{"operation", "step"},
		),
	}
}

// Registry exposes the registry for additional collectors.
func (recorder *Recorder) Registry() *prometheus.Registry {
	return recorder.registry
}

// Handler serves the registry in the Prometheus text format.
func (recorder *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(recorder.registry, promhttp.HandlerOpts{})
}

func (recorder *Recorder) LogOperation(_ context.Context, entry ledger.OperationLog) {
	recorder.OperationsTotal.WithLabelValues(entry.Operation, entry.Status).Inc()
	switch entry.Status {
	case ledger.OperationStatusOK:
		recorder.OperationAmountCents.WithLabelValues(entry.Operation).Add(float64(entry.Amount.Int64()))
	case ledger.OperationStatusCompensationFailed:
		recorder.CompensationFailures.WithLabelValues(entry.Operation, entry.Step).Inc()
	}
}

func (recorder *Recorder) RecordHTTPRequest(method, path, status string, duration float64) {
	recorder.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	recorder.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// Middleware records request counts and latency by route template.
func (recorder *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		recorder.RecordHTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
