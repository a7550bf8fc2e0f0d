// Package metrics holds the Prometheus collectors shared by the server's
// ingestion adapters and alert pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "soilwatch"

var (
	// Readings counts accepted sensor readings by ingestion source
	// (http, grpc, mqtt, check).
	Readings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "readings_total",
		Help:      "Sensor readings accepted, by ingestion source.",
	}, []string{"source"})

	// Outcomes counts pipeline results by outcome status.
	Outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_outcomes_total",
		Help:      "Alert pipeline results, by status.",
	}, []string{"status"})

	// Violations counts threshold violations by parameter and direction.
	Violations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "violations_total",
		Help:      "Threshold violations observed, by parameter and direction.",
	}, []string{"parameter", "direction"})

	// Deliveries counts per-recipient send results.
	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Per-recipient notification sends, by result.",
	}, []string{"result"})

	// CatalogCache counts stage threshold cache lookups by result (hit, miss).
	CatalogCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_cache_lookups_total",
		Help:      "Stage threshold cache lookups, by result.",
	}, []string{"result"})

	// Events counts delivered-alert events by result (published, dropped, error).
	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alert_events_total",
		Help:      "Delivered-alert events handed to the event stream, by result.",
	}, []string{"result"})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Readings, Outcomes, Violations, Deliveries, CatalogCache, Events} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the collectors gathered by g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
