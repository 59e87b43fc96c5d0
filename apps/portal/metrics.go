package main

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "grievance_portal"

// Metrics holds the portal's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	BackendRequests     *prometheus.CounterVec
	BackendDuration     *prometheus.HistogramVec
	ComplaintsSubmitted prometheus.Counter
	ForumUploads        *prometheus.CounterVec
	JobRuns             *prometheus.CounterVec
	VoiceSessions       prometheus.Gauge
	ForumImageBuffer    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		BackendRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "backend_requests_total",
				Help:      "Calls to the grievance backend by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		BackendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Grievance backend call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		ComplaintsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "complaints_submitted_total",
			Help:      "Complaints accepted by the backend",
		}),
		ForumUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "forum_uploads_total",
				Help:      "Forum image objects by outcome (staged, committed, compensated, orphaned, cleaned)",
			},
			[]string{"outcome"},
		),
		JobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "job_runs_total",
				Help:      "Scheduled job runs by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		VoiceSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "voice_sessions",
			Help:      "Open voice websocket sessions",
		}),
		ForumImageBuffer: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "forum_image_buffer_bytes",
			Help:      "Bytes of forum images held in memory by requests in flight",
		}),
	}
}

func (m *Metrics) observeHTTP(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// observeBackend matches backend.Observer. Status 0 means the call never got
// an HTTP response.
func (m *Metrics) observeBackend(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case status == 0:
		outcome = "unavailable"
	case status >= 500:
		outcome = "server_error"
	case status >= 400:
		outcome = "client_error"
	}
	m.BackendRequests.WithLabelValues(endpoint, outcome).Inc()
	m.BackendDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Metrics) observeComplaintSubmitted() {
	if m == nil {
		return
	}
	m.ComplaintsSubmitted.Inc()
}

func (m *Metrics) observeUploads(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.ForumUploads.WithLabelValues(outcome).Add(float64(count))
}

func (m *Metrics) observeJob(job string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.JobRuns.WithLabelValues(job, outcome).Inc()
}

func (m *Metrics) voiceSessionOpened() {
	if m != nil {
		m.VoiceSessions.Inc()
	}
}

func (m *Metrics) voiceSessionClosed() {
	if m != nil {
		m.VoiceSessions.Dec()
	}
}

// observeImageBuffer adds delta bytes to the in-memory forum image total.
func (m *Metrics) observeImageBuffer(delta int) {
	if m != nil {
		m.ForumImageBuffer.Add(float64(delta))
	}
}

func (a *App) metricsHandler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})
	return gin.WrapH(handler)
}
