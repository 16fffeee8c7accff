package observability

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/yungbote/lessonforge/internal/pkg/envutil"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

// Metrics owns a private Prometheus registry for the generation engine and the
// operator API.
type Metrics struct {
	reg *prometheus.Registry

	events       *prometheus.CounterVec
	laneOutcomes *prometheus.CounterVec
	laneDuration *prometheus.HistogramVec
	inflight     prometheus.Gauge

	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
	apiInflight prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Current() *Metrics {
	return instance
}

// InitMetrics returns nil when METRICS_ENABLED is off; every method is nil-safe.
func InitMetrics(log *logger.Logger) *Metrics {
	if !envutil.GetEnvAsBool("METRICS_ENABLED", false) {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("Generation metrics enabled")
		}
	})
	return instance
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lf_generation_events_total",
			Help: "Generation events by step and status.",
		}, []string{"step", "status"}),
		laneOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lf_lane_outcomes_total",
			Help: "Lane outcomes by activity kind, status and reason.",
		}, []string{"kind", "status", "reason"}),
		laneDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lf_lane_duration_seconds",
			Help:    "Lane wall time in seconds by activity kind and status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"kind", "status"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lf_lanes_inflight",
			Help: "Lanes currently executing.",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lf_api_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lf_api_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lf_api_inflight",
			Help: "HTTP requests in flight.",
		}),
	}
	m.reg.MustRegister(
		m.events,
		m.laneOutcomes,
		m.laneDuration,
		m.inflight,
		m.apiRequests,
		m.apiDuration,
		m.apiInflight,
	)
	return m
}

func (m *Metrics) IncEvent(step, status string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(step, status).Inc()
}

func (m *Metrics) LaneStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) ObserveLane(kind, status, reason string, dur time.Duration) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.laneOutcomes.WithLabelValues(kind, status, reason).Inc()
	m.laneDuration.WithLabelValues(kind, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiDuration.WithLabelValues(method, route).Observe(dur.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// WritePrometheus dumps every family in text format.
func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.reg.Gather()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	_, err = w.Write(buf.Bytes())
	return err
}
