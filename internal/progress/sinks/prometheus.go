package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/catalog-crawler/internal/progress"
)

// PrometheusSink exports run progress as gauges labeled by catalog.
type PrometheusSink struct {
	done  *prometheus.GaugeVec
	total *prometheus.GaugeVec
	ratio *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against the provided registry.
// Collectors already registered by an earlier run are reused.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		done: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalog_progress_done",
			Help: "Work items completed in the current run.",
		}, []string{"catalog"}),
		total: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalog_progress_total",
			Help: "Work items discovered for the current run.",
		}, []string{"catalog"}),
		ratio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalog_progress_ratio",
			Help: "Fraction of the current run completed.",
		}, []string{"catalog"}),
	}
	var err error
	if s.done, err = register(reg, s.done); err != nil {
		return nil, err
	}
	if s.total, err = register(reg, s.total); err != nil {
		return nil, err
	}
	if s.ratio, err = register(reg, s.ratio); err != nil {
		return nil, err
	}
	return s, nil
}

func register(reg prometheus.Registerer, g *prometheus.GaugeVec) (*prometheus.GaugeVec, error) {
	if err := reg.Register(g); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register progress collector: %w", err)
	}
	return g, nil
}

// Consume updates the gauges.
func (s *PrometheusSink) Consume(_ context.Context, snap progress.Snapshot) error {
	catalog := snap.Catalog
	if catalog == "" {
		catalog = "unknown"
	}
	s.done.WithLabelValues(catalog).Set(float64(snap.Done))
	s.total.WithLabelValues(catalog).Set(float64(snap.Total))
	s.ratio.WithLabelValues(catalog).Set(snap.Percent() / 100)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
