package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	messagesStagedTotal    prometheus.Counter
	commitsSucceededTotal  prometheus.Counter
	commitsRolledBackTotal prometheus.Counter
	messagesCommittedSize  prometheus.Histogram

	workersConnected prometheus.Gauge

	authRequestsTotal   *prometheus.CounterVec
	authRejectionsTotal *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		messagesStagedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailcore_messages_staged_total",
			Help: "Total number of messages staged into tmp/ awaiting commit.",
		}),
		commitsSucceededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailcore_commits_succeeded_total",
			Help: "Total number of transactions committed successfully.",
		}),
		commitsRolledBackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailcore_commits_rolled_back_total",
			Help: "Total number of transactions rolled back.",
		}),
		messagesCommittedSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailcore_commit_message_count",
			Help:    "Number of messages published per successful commit.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		workersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailcore_auth_workers_connected",
			Help: "Number of auth worker sockets currently connected.",
		}),
		authRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailcore_auth_requests_total",
			Help: "Total number of auth requests, by mechanism and result.",
		}, []string{"mechanism", "result"}),
		authRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailcore_auth_requests_rejected_total",
			Help: "Total number of auth requests rejected before dispatch, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.messagesStagedTotal,
		c.commitsSucceededTotal,
		c.commitsRolledBackTotal,
		c.messagesCommittedSize,
		c.workersConnected,
		c.authRequestsTotal,
		c.authRejectionsTotal,
	)

	return c
}

func (c *PrometheusCollector) MessageStaged() {
	c.messagesStagedTotal.Inc()
}

func (c *PrometheusCollector) CommitSucceeded(messageCount int) {
	c.commitsSucceededTotal.Inc()
	c.messagesCommittedSize.Observe(float64(messageCount))
}

func (c *PrometheusCollector) CommitRolledBack() {
	c.commitsRolledBackTotal.Inc()
}

func (c *PrometheusCollector) WorkerConnected() {
	c.workersConnected.Inc()
}

func (c *PrometheusCollector) WorkerDisconnected() {
	c.workersConnected.Dec()
}

func (c *PrometheusCollector) AuthRequest(mechanism, result string) {
	c.authRequestsTotal.WithLabelValues(mechanism, result).Inc()
}

func (c *PrometheusCollector) AuthRequestRejected(reason string) {
	c.authRejectionsTotal.WithLabelValues(reason).Inc()
}
