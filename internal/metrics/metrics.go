// Package metrics holds the gateway's prometheus collectors.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TokenRenewals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_token_renewals_total",
		Help: "Token acquisitions and refreshes by result",
	}, []string{"kind", "result"}) // kind: acquire|refresh, result: ok|error

	SyncRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sync_records_total",
		Help: "Reconciled candidates by outcome",
	}, []string{"result"}) // result: added|updated|unchanged|failed

	SyncRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_sync_run_duration_seconds",
		Help:    "Duration of one reconciliation batch",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	TaskSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_task_skips_total",
		Help: "Scheduled runs skipped because the previous run was still in progress",
	}, []string{"task"})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "HTTP requests served",
	}, []string{"method", "route", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Register adds every collector to reg, or to the default registry when reg
// is nil. Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		TokenRenewals, SyncRecords, SyncRunDuration, TaskSkips, httpRequestsTotal, httpRequestDuration,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordTokenRenewal(kind string, err error) {
	TokenRenewals.WithLabelValues(kind, result(err)).Inc()
}

func RecordSyncRecord(outcome string) {
	SyncRecords.WithLabelValues(outcome).Inc()
}

func ObserveSyncRun(d time.Duration) {
	SyncRunDuration.Observe(d.Seconds())
}

func RecordTaskSkip(task string) {
	TaskSkips.WithLabelValues(task).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// WithMetrics counts requests and their latency, labelled by chi route pattern.
func WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
