package metric

import "github.com/prometheus/client_golang/prometheus"

// Collector reports gauges whose values are read on scrape.
type Collector struct {
	auditQueue *prometheus.Desc
	policyKeys *prometheus.Desc
	queueDepth func() int
	policySize func() int
}

// NewCollector creates a Collector. Either callback may be nil.
func NewCollector(queueDepth, policySize func() int) *Collector {
	return &Collector{
		auditQueue: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "audit", "queue_depth"),
			"Audit entries waiting to be persisted.", nil, nil),
		policyKeys: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "honeypot", "trap_keys"),
			"Trap keys in the active policy.", nil, nil),
		queueDepth: queueDepth,
		policySize: policySize,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.auditQueue
	ch <- c.policyKeys
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.queueDepth != nil {
		ch <- prometheus.MustNewConstMetric(c.auditQueue, prometheus.GaugeValue, float64(c.queueDepth()))
	}
	if c.policySize != nil {
		ch <- prometheus.MustNewConstMetric(c.policyKeys, prometheus.GaugeValue, float64(c.policySize()))
	}
}
