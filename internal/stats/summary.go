package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"harmonia/internal/model"
)

// TraceSummary condenses a run trace into the figures shown by `harmonizectl show`.
type TraceSummary struct {
	RunID          string  `json:"run_id"`
	Generations    int     `json:"generations"`
	InitialBest    float64 `json:"initial_best"`
	FinalBest      float64 `json:"final_best"`
	Improvement    float64 `json:"improvement"`
	BestGeneration int     `json:"best_generation"`
	MeanOfMeans    float64 `json:"mean_of_means"`
	StdOfMeans     float64 `json:"std_of_means"`
	FinalDistinct  int     `json:"final_distinct"`
	MinDistinct    int     `json:"min_distinct"`
	Evaluations    uint64  `json:"evaluations"`
	CacheHits      uint64  `json:"cache_hits"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
}

func SummarizeTrace(runID string, trace []model.GenerationDiagnostics) TraceSummary {
	summary := TraceSummary{RunID: runID, Generations: len(trace)}
	if len(trace) == 0 {
		return summary
	}

	first, last := trace[0], trace[len(trace)-1]
	summary.InitialBest = first.RunningBest
	summary.FinalBest = last.RunningBest
	summary.Improvement = last.RunningBest - first.RunningBest
	summary.FinalDistinct = last.Distinct
	summary.MinDistinct = first.Distinct

	means := make([]float64, 0, len(trace))
	best := math.Inf(-1)
	for _, d := range trace {
		means = append(means, d.MeanFitness)
		if d.BestFitness > best {
			best = d.BestFitness
			summary.BestGeneration = d.Generation
		}
		if d.Distinct < summary.MinDistinct {
			summary.MinDistinct = d.Distinct
		}
		summary.Evaluations += d.Evaluations
		summary.CacheHits += d.CacheHits
	}
	summary.MeanOfMeans, summary.StdOfMeans = meanStd(means)
	if total := summary.Evaluations + summary.CacheHits; total > 0 {
		summary.CacheHitRate = float64(summary.CacheHits) / float64(total)
	}
	return summary
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}
