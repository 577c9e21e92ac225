// Package sinks implements concrete progress consumers: a rewritable terminal
// line, structured logging and Prometheus gauges. Each satisfies
// progress.Sink.
package sinks
