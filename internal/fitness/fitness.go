// Package fitness combines heuristic scores into a single weighted fitness
// and memoizes evaluations per progression.
package fitness

import (
	"sync"
	"sync/atomic"

	"harmonia/internal/config"
	"harmonia/internal/heuristic"
	"harmonia/internal/music"
)

// Record is an evaluated progression: the scalar fitness plus the raw score
// of each heuristic, indexed in heuristic.Names order.
type Record struct {
	Progression music.Progression
	Fitness     float64
	Scores      [heuristic.Count]float64
}

// ScoreMap returns the raw scores keyed by heuristic name.
func (r Record) ScoreMap() map[string]float64 {
	out := make(map[string]float64, heuristic.Count)
	for i, name := range heuristic.Names {
		out[name] = r.Scores[i]
	}
	return out
}

// Score runs every scorer over the progression.
func Score(m *music.Melody, p music.Progression, scorers [heuristic.Count]heuristic.Scorer) [heuristic.Count]float64 {
	var out [heuristic.Count]float64
	for i, s := range scorers {
		out[i] = s.Score(m, p)
	}
	return out
}

// Combine returns the weighted sum of the scores.
func Combine(scores, weights [heuristic.Count]float64) float64 {
	total := 0.0
	for i := range scores {
		total += weights[i] * scores[i]
	}
	return total
}

// Fitness scores p against m and returns the weighted sum. Invalid weights
// yield a *config.ConfigurationError.
func Fitness(m *music.Melody, p music.Progression, weights config.Weights, scorers [heuristic.Count]heuristic.Scorer) (float64, error) {
	if err := weights.Validate(); err != nil {
		return 0, err
	}
	return Combine(Score(m, p, scorers), weights.Vector()), nil
}

// Evaluator scores progressions for one melody under fixed weights. It is
// safe for concurrent use; results are cached by progression content.
type Evaluator struct {
	melody  *music.Melody
	scorers [heuristic.Count]heuristic.Scorer
	weights [heuristic.Count]float64

	mu     sync.RWMutex
	cache  map[string]Record
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewEvaluator(m *music.Melody, weights config.Weights, scorers [heuristic.Count]heuristic.Scorer) (*Evaluator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{
		melody:  m,
		scorers: scorers,
		weights: weights.Vector(),
		cache:   make(map[string]Record),
	}, nil
}

// Evaluate returns the record for p, computing it on a cache miss.
func (e *Evaluator) Evaluate(p music.Progression) Record {
	key := p.Key()
	e.mu.RLock()
	rec, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		e.hits.Add(1)
		rec.Progression = p.Clone()
		return rec
	}
	e.misses.Add(1)

	scores := Score(e.melody, p, e.scorers)
	rec = Record{
		Progression: p.Clone(),
		Fitness:     Combine(scores, e.weights),
		Scores:      scores,
	}
	e.mu.Lock()
	e.cache[key] = rec
	e.mu.Unlock()
	return rec
}

// CacheStats reports memo hits and misses since construction.
func (e *Evaluator) CacheStats() (hits, misses uint64) {
	return e.hits.Load(), e.misses.Load()
}

// CacheSize returns the number of distinct progressions scored so far.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func (e *Evaluator) Melody() *music.Melody {
	return e.melody
}
