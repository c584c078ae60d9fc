// Package metric provides Prometheus metrics for cligate.
//
//   - prometheus.go: the Registry of domain counters and the /metrics handler
//   - collector.go: callback-driven gauges (audit queue depth, trap policy size)
//
// All Registry methods are safe on a nil receiver so services can run
// without metrics in tests.
package metric
