package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/tracked/internal/model"
)

// Metrics holds the provider request collectors.
type Metrics struct {
	// Requests counts provider requests.
	// Labels: resource, method (create, read, update, destroy), status (ok, not_found, error)
	Requests *prometheus.CounterVec

	// Duration measures provider request latency in seconds.
	// Labels: resource, method
	Duration *prometheus.HistogramVec
}

// NewMetrics registers the provider collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracked",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total persistence provider requests",
		}, []string{"resource", "method", "status"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tracked",
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Persistence provider request latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"resource", "method"}),
	}
}

// Instrument wraps p so every request is counted, timed and logged.
// A nil logger uses slog.Default().
func Instrument(p model.Provider, m *Metrics, logger *slog.Logger) model.Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &instrumented{next: p, metrics: m, logger: logger}
}

type instrumented struct {
	next    model.Provider
	metrics *Metrics
	logger  *slog.Logger
}

func (p *instrumented) Create(ctx context.Context, req *model.Request) (*model.Result, error) {
	return p.observe(ctx, req, p.next.Create)
}

func (p *instrumented) Read(ctx context.Context, req *model.Request) (*model.Result, error) {
	return p.observe(ctx, req, p.next.Read)
}

func (p *instrumented) Update(ctx context.Context, req *model.Request) (*model.Result, error) {
	return p.observe(ctx, req, p.next.Update)
}

func (p *instrumented) Destroy(ctx context.Context, req *model.Request) (*model.Result, error) {
	return p.observe(ctx, req, p.next.Destroy)
}

func (p *instrumented) observe(
	ctx context.Context,
	req *model.Request,
	call func(context.Context, *model.Request) (*model.Result, error),
) (*model.Result, error) {
	start := time.Now()
	res, err := call(ctx, req)
	elapsed := time.Since(start)

	method := string(req.Method)
	status := statusOf(err)
	if p.metrics != nil {
		p.metrics.Requests.WithLabelValues(req.Resource, method, status).Inc()
		p.metrics.Duration.WithLabelValues(req.Resource, method).Observe(elapsed.Seconds())
	}

	attrs := []any{
		"resource", req.Resource,
		"method", method,
		"id", req.ID,
		"many", req.Many,
		"duration", elapsed,
		"status", status,
	}
	if err != nil {
		p.logger.Error("provider request failed", append(attrs, "error", err)...)
	} else {
		p.logger.Debug("provider request", attrs...)
	}
	return res, err
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}
