package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexushub/controlplane/internal/common/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	namespace     string
	httpReqCnt    *prometheus.CounterVec
	httpDur       *prometheus.HistogramVec
	httpInfl      *prometheus.GaugeVec
	mutationCnt   *prometheus.CounterVec
	auditCnt      *prometheus.CounterVec
	scopeDenied   *prometheus.CounterVec
	lockdownGauge prometheus.Gauge
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds"}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	mutationCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "privileged_mutations_total"}, []string{"action", "status"})
	auditCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "audit_entries_total"}, []string{"target_type"})
	scopeDenied := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "scope_denials_total"}, []string{"operation"})
	lockdownGauge := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "federation_lockdown_active"})
	r.MustRegister(mutationCnt, auditCnt, scopeDenied, lockdownGauge)

	return &Metrics{
		registry:      r,
		namespace:     ns,
		httpReqCnt:    httpReqCnt,
		httpDur:       httpDur,
		httpInfl:      httpInfl,
		mutationCnt:   mutationCnt,
		auditCnt:      auditCnt,
		scopeDenied:   scopeDenied,
		lockdownGauge: lockdownGauge,
	}
}

// MutationDone records the outcome of a privileged mutation.
func (m *Metrics) MutationDone(action, status string) {
	m.mutationCnt.WithLabelValues(action, status).Inc()
}

// AuditAppended records a persisted audit entry.
func (m *Metrics) AuditAppended(targetType string) {
	m.auditCnt.WithLabelValues(targetType).Inc()
}

// ScopeDenied records an authorization denial.
func (m *Metrics) ScopeDenied(operation string) {
	m.scopeDenied.WithLabelValues(operation).Inc()
}

// SetLockdown reflects the current emergency lockdown state.
func (m *Metrics) SetLockdown(active bool) {
	if active {
		m.lockdownGauge.Set(1)
		return
	}
	m.lockdownGauge.Set(0)
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
