// Package progress samples pipeline completion at a fixed cadence and fans
// snapshots out to pluggable sinks such as a terminal line, structured logs
// or Prometheus gauges.
package progress
