// Package metrics exposes Prometheus instrumentation for harmonization runs.
// A Recorder is registered on a caller-supplied registerer so tests and
// embedding programs never collide on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"harmonia/internal/model"
)

const (
	metricsNamespace = "harmonia"
	evoSubsystem     = "evo"
)

// Recorder implements evo.Observer.
type Recorder struct {
	// GenerationsTotal counts evaluated generations.
	GenerationsTotal prometheus.Counter
	// EvaluationsTotal counts fitness computations by outcome.
	// Labels: result (computed, cached)
	EvaluationsTotal *prometheus.CounterVec
	// BestFitness is the running best fitness of the current run.
	BestFitness prometheus.Gauge
	// MeanFitness is the mean fitness of the latest generation.
	MeanFitness prometheus.Gauge
	// DistinctProgressions is the number of distinct progressions in the latest generation.
	DistinctProgressions prometheus.Gauge
	// RunsTotal counts finished runs by termination reason.
	RunsTotal *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		GenerationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: evoSubsystem,
			Name:      "generations_total",
			Help:      "Total number of evaluated generations",
		}),
		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: evoSubsystem,
			Name:      "evaluations_total",
			Help:      "Fitness evaluations by result (computed or served from cache)",
		}, []string{"result"}),
		BestFitness: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: evoSubsystem,
			Name:      "best_fitness",
			Help:      "Running best fitness of the current run",
		}),
		MeanFitness: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: evoSubsystem,
			Name:      "mean_fitness",
			Help:      "Mean fitness of the latest generation",
		}),
		DistinctProgressions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: evoSubsystem,
			Name:      "distinct_progressions",
			Help:      "Distinct progressions in the latest generation",
		}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: evoSubsystem,
			Name:      "runs_total",
			Help:      "Finished runs by termination reason",
		}, []string{"reason"}),
	}
}

func (r *Recorder) ObserveGeneration(d model.GenerationDiagnostics) {
	r.GenerationsTotal.Inc()
	r.EvaluationsTotal.WithLabelValues("computed").Add(float64(d.Evaluations))
	r.EvaluationsTotal.WithLabelValues("cached").Add(float64(d.CacheHits))
	r.BestFitness.Set(d.RunningBest)
	r.MeanFitness.Set(d.MeanFitness)
	r.DistinctProgressions.Set(float64(d.Distinct))
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(reason string) {
	r.RunsTotal.WithLabelValues(reason).Inc()
}
