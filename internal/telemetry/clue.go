package telemetry

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

type (
	// ClueLogger delegates to goa.design/clue/log for structured logging,
	// configured at process start from LOG_LEVEL/LOG_FORMAT (see Configure).
	ClueLogger struct{}

	// PromTracer emits OpenTelemetry spans using the globally configured
	// TracerProvider.
	PromTracer struct {
		tracer trace.Tracer
	}

	// PromMetrics records kernel counters and gauges on a dedicated
	// Prometheus registry, exposed through Registry for scraping;
	// internal/httpapi mounts no /metrics endpoint.
	PromMetrics struct {
		registry *prometheus.Registry
		counters map[string]*prometheus.CounterVec
		gauges   map[string]*prometheus.GaugeVec
		timers   map[string]*prometheus.HistogramVec
	}

	// OTelMetrics records kernel counters and gauges through the
	// globally configured OTEL MeterProvider, for deployments that want
	// metrics on the same OTLP pipeline as tracing instead of scraped
	// Prometheus.
	OTelMetrics struct {
		meter metric.Meter
	}

	clueSpan struct{ span trace.Span }
)

// Configure applies LOG_LEVEL and LOG_FORMAT to a base context,
// returning the context clue log calls should thread through. LOG_FORMAT
// "json" selects JSON and "text" or unset selects terminal format; only
// LOG_LEVEL "debug" changes the level. LOG_TIMESTAMPS is not read.
func Configure(ctx context.Context) context.Context {
	ctx = log.Context(ctx, log.WithFunc(log.Span))
	switch os.Getenv("LOG_FORMAT") {
	case "json":
		ctx = log.Context(ctx, log.WithFormat(log.FormatJSON))
	case "text", "":
		ctx = log.Context(ctx, log.WithFormat(log.FormatTerminal))
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		ctx = log.Context(ctx, log.WithDebug())
	}
	return ctx
}

// NewClueLogger constructs a Logger that delegates to goa.design/clue/log.
func NewClueLogger() Logger { return ClueLogger{} }

// NewOTelTracer constructs a Tracer backed by the global OTEL TracerProvider.
func NewOTelTracer(name string) Tracer {
	return &PromTracer{tracer: otel.Tracer(name)}
}

// NewPromMetrics constructs a Metrics recorder backed by its own
// Prometheus registry so the control plane can expose it independently
// of any global registry.
func NewPromMetrics() *PromMetrics {
	return &PromMetrics{
		registry: prometheus.NewRegistry(),
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
		timers:   make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying Prometheus registry for scraping.
func (m *PromMetrics) Registry() *prometheus.Registry { return m.registry }

// NewOTelMetrics constructs a Metrics recorder backed by the global OTEL
// MeterProvider (configure it via otel.SetMeterProvider, typically
// through clue.ConfigureOpenTelemetry, before recording anything).
func NewOTelMetrics(name string) *OTelMetrics {
	return &OTelMetrics{meter: otel.Meter(name)}
}

// NewMetricsFromEnv picks the metrics backend from METRICS_BACKEND
// ("otel" selects OTelMetrics; anything else, including unset,
// defaults to PromMetrics), mirroring Configure's env-var-driven
// selection for logging.
func NewMetricsFromEnv(meterName string) Metrics {
	if os.Getenv("METRICS_BACKEND") == "otel" {
		return NewOTelMetrics(meterName)
	}
	return NewPromMetrics()
}

func (m *OTelMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(metricName(name))
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OTelMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(metricName(name))
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagsToAttrs(tags)...))
}

// RecordGauge records value on a histogram since OTEL has no
// synchronous-gauge instrument, the same fallback the reference stack's
// OTEL metrics recorder uses.
func (m *OTelMetrics) RecordGauge(name string, value float64, tags ...string) {
	histogram, err := m.meter.Float64Histogram(metricName(name) + "_gauge")
	if err != nil {
		return
	}
	histogram.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func tagsToAttrs(tags []string) []attribute.KeyValue {
	labels, values := splitTags(tags)
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for i, l := range labels {
		attrs = append(attrs, attribute.String(l, values[i]))
	}
	return attrs
}

func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	f := append([]log.Fielder{log.KV{K: "severity", V: "warning"}}, fielders(msg, keyvals)...)
	log.Warn(ctx, f...)
}

func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, fielders(msg, keyvals)...)
}

func fielders(msg string, keyvals []any) []log.Fielder {
	out := []log.Fielder{log.KV{K: "msg", V: msg}}
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		out = append(out, log.KV{K: k, V: keyvals[i+1]})
	}
	return out
}

func (m *PromMetrics) IncCounter(name string, value float64, tags ...string) {
	labels, values := splitTags(tags)
	c, ok := m.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: metricName(name), Help: name}, labels)
		m.registry.MustRegister(c)
		m.counters[name] = c
	}
	c.WithLabelValues(values...).Add(value)
}

func (m *PromMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	labels, values := splitTags(tags)
	h, ok := m.timers[name]
	if !ok {
		h = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: metricName(name), Help: name}, labels)
		m.registry.MustRegister(h)
		m.timers[name] = h
	}
	h.WithLabelValues(values...).Observe(duration.Seconds())
}

func (m *PromMetrics) RecordGauge(name string, value float64, tags ...string) {
	labels, values := splitTags(tags)
	g, ok := m.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: metricName(name), Help: name}, labels)
		m.registry.MustRegister(g)
		m.gauges[name] = g
	}
	g.WithLabelValues(values...).Set(value)
}

func splitTags(tags []string) (labels, values []string) {
	for i := 0; i+1 < len(tags); i += 2 {
		labels = append(labels, tags[i])
		values = append(values, tags[i+1])
	}
	return labels, values
}

func metricName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '.' || r == '-' || r == ' ' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

func (t *PromTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &clueSpan{span: span}
}

func (s *clueSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *clueSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(toAttrs(attrs)...))
}

func (s *clueSpan) SetStatus(code codes.Code, description string) { s.span.SetStatus(code, description) }

func (s *clueSpan) RecordError(err error, opts ...trace.EventOption) { s.span.RecordError(err, opts...) }

func toAttrs(keyvals []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, _ := keyvals[i].(string)
		switch v := keyvals[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(k, v))
		case int:
			attrs = append(attrs, attribute.Int(k, v))
		case int64:
			attrs = append(attrs, attribute.Int64(k, v))
		case float64:
			attrs = append(attrs, attribute.Float64(k, v))
		case bool:
			attrs = append(attrs, attribute.Bool(k, v))
		default:
			attrs = append(attrs, attribute.String(k, ""))
		}
	}
	return attrs
}
