// Package metrics exports per-run Prometheus metrics.
//
// Each run gets its own registry, filled from the completed result and
// written in the node_exporter textfile format (run_<id>.prom) next to the
// other artifacts. A collector can scrape the results directory or the
// registry can be served directly.
package metrics

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/simulation"
)

const namespace = "episim"

// FileName returns the textfile name for a run, e.g. run_004.prom.
func FileName(runID string) string {
	return fmt.Sprintf("run_%s.prom", runID)
}

// RunMetrics holds the metrics describing one completed run. Every series
// carries a constant run_id label.
type RunMetrics struct {
	reg *prometheus.Registry

	// FinalIndividuals is the population by state at the end of the run.
	// Labels: state (susceptible, exposed, infected, recovered)
	FinalIndividuals *prometheus.GaugeVec

	// TransitionsTotal counts state transitions over the run.
	// Labels: from, to
	TransitionsTotal *prometheus.CounterVec

	// InterventionTargetsTotal counts individuals or edges touched by rules.
	// Labels: kind, action
	InterventionTargetsTotal *prometheus.CounterVec

	RunDurationSeconds prometheus.Gauge
	SimulatedDays      prometheus.Gauge
	EverInfected       prometheus.Gauge
	PeakInfected       prometheus.Gauge
}

// New creates the metrics for runID on a fresh registry.
func New(runID string) *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"run_id": runID}

	return &RunMetrics{
		reg: reg,
		FinalIndividuals: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "final_individuals",
			Help:        "Individuals in each disease state at the end of the run",
			ConstLabels: labels,
		}, []string{"state"}),
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "transitions_total",
			Help:        "State transitions observed during the run",
			ConstLabels: labels,
		}, []string{"from", "to"}),
		InterventionTargetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "intervention_targets_total",
			Help:        "Individuals or contacts affected by intervention rules",
			ConstLabels: labels,
		}, []string{"kind", "action"}),
		RunDurationSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Wall-clock time spent simulating",
			ConstLabels: labels,
		}),
		SimulatedDays: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "simulated_days",
			Help:        "Number of days simulated",
			ConstLabels: labels,
		}),
		EverInfected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "ever_infected",
			Help:        "Individuals who reached Infected during the run",
			ConstLabels: labels,
		}),
		PeakInfected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "peak_infected",
			Help:        "Highest single-day Infected count",
			ConstLabels: labels,
		}),
	}
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.reg
}

// Observe fills the metrics from a completed run.
func (m *RunMetrics) Observe(result *simulation.Result) {
	s := result.Summary
	for _, st := range models.AllStates {
		m.FinalIndividuals.WithLabelValues(stateLabel(st)).Set(float64(s.FinalState[st.Short()]))
	}
	for _, e := range result.Events {
		m.TransitionsTotal.WithLabelValues(stateLabel(e.From), stateLabel(e.To)).Inc()
	}
	for _, d := range result.Decisions {
		m.InterventionTargetsTotal.WithLabelValues(string(d.Kind), d.Action).Add(float64(d.Targets))
	}

	var peak int
	for _, day := range result.History {
		peak = max(peak, day.Infected)
	}

	m.RunDurationSeconds.Set(s.RuntimeMS / float64(time.Second/time.Millisecond))
	m.SimulatedDays.Set(float64(len(result.History)))
	m.EverInfected.Set(float64(s.EverInfected))
	m.PeakInfected.Set(float64(peak))
}

// WriteTextfile writes the registry to dir/run_<id>.prom and returns the path.
func (m *RunMetrics) WriteTextfile(dir, runID string) (string, error) {
	path := filepath.Join(dir, FileName(runID))
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return "", fmt.Errorf("failed to write metrics: %w", err)
	}
	return path, nil
}

func stateLabel(s models.State) string {
	switch s {
	case models.StateSusceptible:
		return "susceptible"
	case models.StateExposed:
		return "exposed"
	case models.StateInfected:
		return "infected"
	case models.StateRecovered:
		return "recovered"
	}
	return "unknown"
}
