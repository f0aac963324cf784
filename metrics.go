package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "rvnproxy"

// proxyMetrics wraps a private Prometheus registry. All methods are nil-safe
// so tests can pass a nil *proxyMetrics.
type proxyMetrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	templateErrors  *prometheus.CounterVec
	candidatesBuilt prometheus.Counter
	broadcasts      *prometheus.CounterVec
	broadcastDrops  prometheus.Counter
	sessions        prometheus.Gauge
	submissions     *prometheus.CounterVec
	height          prometheus.Gauge
	difficulty      prometheus.Gauge
	rpcLatency      *prometheus.HistogramVec
	rpcErrors       *prometheus.CounterVec
	zmqReconnects   prometheus.Counter
}

func newProxyMetrics() (*proxyMetrics, error) {
	reg := prometheus.NewRegistry()
	m := &proxyMetrics{
		registry: reg,
		templateErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "template_errors_total",
			Help: "getblocktemplate polls that produced no usable template, by kind.",
		}, []string{"kind"}),
		candidatesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "candidates_built_total",
			Help: "Candidate blocks assembled.",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "job_broadcasts_total",
			Help: "mining.notify broadcasts, by clean flag.",
		}, []string{"clean"}),
		broadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "job_broadcast_drops_total",
			Help: "Notifications dropped because a session queue was full.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "stratum_sessions",
			Help: "Connected stratum sessions.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "block_submissions_total",
			Help: "Block submissions by result.",
		}, []string{"result"}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "template_height",
			Help: "Height of the latest block template.",
		}),
		difficulty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "network_difficulty",
			Help: "Network difficulty implied by the template bits.",
		}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "rpc_latency_seconds",
			Help:    "Node RPC round trip time.",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		rpcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "rpc_errors_total",
			Help: "Failed node RPC calls.",
		}, []string{"method"}),
		zmqReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "zmq_reconnects_total",
			Help: "Times the hashblock subscription became healthy after being down.",
		}),
	}
	collectors := []prometheus.Collector{
		m.templateErrors, m.candidatesBuilt, m.broadcasts, m.broadcastDrops, m.sessions,
		m.submissions, m.height, m.difficulty, m.rpcLatency, m.rpcErrors, m.zmqReconnects,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m, nil
}

func (m *proxyMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

func (m *proxyMetrics) RecordTemplateError(kind string) {
	if m == nil {
		return
	}
	m.templateErrors.WithLabelValues(kind).Inc()
}

func (m *proxyMetrics) RecordCandidate(c *CandidateBlock) {
	if m == nil || c == nil {
		return
	}
	m.candidatesBuilt.Inc()
	m.height.Set(float64(c.Height))
	m.difficulty.Set(difficultyFromBits(c.Bits))
}

func (m *proxyMetrics) RecordBroadcast(clean bool, dropped int) {
	if m == nil {
		return
	}
	label := "false"
	if clean {
		label = "true"
	}
	m.broadcasts.WithLabelValues(label).Inc()
	if dropped > 0 {
		m.broadcastDrops.Add(float64(dropped))
	}
}

func (m *proxyMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *proxyMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

// RecordBlockSubmission counts one submit outcome: accepted, rejected,
// pending or replayed.
func (m *proxyMetrics) RecordBlockSubmission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

func (m *proxyMetrics) ObserveRPCLatency(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcLatency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *proxyMetrics) RecordRPCError(method string) {
	if m == nil {
		return
	}
	m.rpcErrors.WithLabelValues(method).Inc()
}

func (m *proxyMetrics) RecordZMQReconnect() {
	if m == nil {
		return
	}
	m.zmqReconnects.Inc()
}
