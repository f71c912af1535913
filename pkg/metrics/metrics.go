// Package metrics exposes the service's Prometheus instruments. A nil
// *Metrics is valid and records nothing, so components can be built without
// a registry in tests and tools.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the checklist service reports.
type Metrics struct {
	// Request metrics
	requestDuration *prometheus.HistogramVec
	requestCounter  *prometheus.CounterVec
	errorCounter    *prometheus.CounterVec

	// Engine metrics
	checklistsGenerated *prometheus.CounterVec
	generatorRuns       *prometheus.CounterVec
	generatorLastRun    prometheus.Gauge
	submissions         *prometheus.CounterVec
	defectsCreated      *prometheus.CounterVec
	defectsClosed       prometheus.Counter
	overdueMarked       prometheus.Counter

	// Database operation metrics
	dbOperation *prometheus.HistogramVec
}

// New registers the collectors on reg under the given namespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		requestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "route"},
		),
		errorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API responses with status >= 400",
			},
			[]string{"method", "route", "status"},
		),
		checklistsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checklists_generated_total",
				Help:      "Checklist instantiation attempts by outcome",
			},
			[]string{"outcome"},
		),
		generatorRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generator_runs_total",
				Help:      "Daily generator runs by result",
			},
			[]string{"result"},
		),
		generatorLastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generator_last_run_timestamp_seconds",
			Help:      "Unix time of the last successful daily generator run",
		}),
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "item_submissions_total",
				Help:      "Checklist item submissions by result code",
			},
			[]string{"result"},
		),
		defectsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "defects_created_total",
				Help:      "Defects opened, by source and severity",
			},
			[]string{"source", "severity"},
		),
		defectsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "defects_closed_total",
			Help:      "Defects closed",
		}),
		overdueMarked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checklists_marked_overdue_total",
			Help:      "Checklists moved to overdue by the sweep",
		}),
		dbOperation: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_operation_duration_seconds",
				Help:      "Duration of database operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Handler serves the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Middleware tracks request metrics labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := strconv.Itoa(rec.status)

		m.requestCounter.WithLabelValues(r.Method, route).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		if rec.status >= 400 {
			m.errorCounter.WithLabelValues(r.Method, route, status).Inc()
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RecordGeneration adds one scheduler run's counts.
func (m *Metrics) RecordGeneration(created, skipped, failed int) {
	if m == nil {
		return
	}
	m.checklistsGenerated.WithLabelValues("created").Add(float64(created))
	m.checklistsGenerated.WithLabelValues("skipped").Add(float64(skipped))
	m.checklistsGenerated.WithLabelValues("failed").Add(float64(failed))
}

// RecordGeneratorRun records a daily generator tick.
func (m *Metrics) RecordGeneratorRun(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.generatorRuns.WithLabelValues("error").Inc()
		return
	}
	m.generatorRuns.WithLabelValues("ok").Inc()
	m.generatorLastRun.SetToCurrentTime()
}

// RecordSubmission counts a submission by result ("accepted" or an error code).
func (m *Metrics) RecordSubmission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

// RecordDefectCreated counts an opened defect.
func (m *Metrics) RecordDefectCreated(auto bool, severity string) {
	if m == nil {
		return
	}
	source := "manual"
	if auto {
		source = "auto"
	}
	m.defectsCreated.WithLabelValues(source, severity).Inc()
}

// RecordDefectClosed counts a closed defect.
func (m *Metrics) RecordDefectClosed() {
	if m == nil {
		return
	}
	m.defectsClosed.Inc()
}

// RecordOverdue counts checklists flipped to overdue.
func (m *Metrics) RecordOverdue(n int64) {
	if m == nil {
		return
	}
	m.overdueMarked.Add(float64(n))
}

// TrackDBOperation returns a function that observes the duration since start.
//
//	defer m.TrackDBOperation("instantiate_pair")(time.Now())
func (m *Metrics) TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		if m == nil {
			return
		}
		m.dbOperation.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
