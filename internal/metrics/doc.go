// Package metrics exports light service counters.
//
// Collector publishes Prometheus gauges and counters for the /metrics
// endpoint. InfluxRecorder writes light state to InfluxDB whenever it
// changes, plus a service summary on every scheduler tick.
package metrics
