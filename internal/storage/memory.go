package storage

import (
	"context"
	"sort"
	"sync"

	"harmonia/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	traces      map[string][]model.GenerationDiagnostics
	best        map[string]model.FitnessRecord
	populations map[string]model.PopulationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.traces = make(map[string][]model.GenerationDiagnostics)
	s.best = make(map[string]model.FitnessRecord)
	s.populations = make(map[string]model.PopulationRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.RunRecord{}, false, ErrNotInitialized
	}
	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return copyRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, copyRun(run))
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) SaveTrace(_ context.Context, runID string, trace []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	copied := make([]model.GenerationDiagnostics, len(trace))
	copy(copied, trace)
	s.traces[runID] = copied
	return nil
}

func (s *MemoryStore) GetTrace(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	trace, ok := s.traces[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationDiagnostics, len(trace))
	copy(copied, trace)
	return copied, true, nil
}

func (s *MemoryStore) SaveBest(_ context.Context, runID string, best model.FitnessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.best[runID] = copyFitness(best)
	return nil
}

func (s *MemoryStore) GetBest(_ context.Context, runID string) (model.FitnessRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.FitnessRecord{}, false, ErrNotInitialized
	}
	best, ok := s.best[runID]
	if !ok {
		return model.FitnessRecord{}, false, nil
	}
	return copyFitness(best), true, nil
}

func (s *MemoryStore) SavePopulation(_ context.Context, population model.PopulationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.populations[population.RunID] = copyPopulation(population)
	return nil
}

func (s *MemoryStore) GetPopulation(_ context.Context, runID string) (model.PopulationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.PopulationRecord{}, false, ErrNotInitialized
	}
	population, ok := s.populations[runID]
	if !ok {
		return model.PopulationRecord{}, false, nil
	}
	return copyPopulation(population), true, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	delete(s.runs, runID)
	delete(s.traces, runID)
	delete(s.best, runID)
	delete(s.populations, runID)
	return nil
}

func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}

func copyRun(run model.RunRecord) model.RunRecord {
	run.Melody = append(run.Melody[:0:0], run.Melody...)
	run.Config.Vocabulary = append([]string(nil), run.Config.Vocabulary...)
	run.Config.Weights = run.Config.Weights.Clone()
	if run.Config.PreferredTransitions != nil {
		transitions := make(map[string][]string, len(run.Config.PreferredTransitions))
		for from, to := range run.Config.PreferredTransitions {
			transitions[from] = append([]string(nil), to...)
		}
		run.Config.PreferredTransitions = transitions
	}
	return run
}

func copyFitness(r model.FitnessRecord) model.FitnessRecord {
	r.Chords = append([]model.ChordRecord(nil), r.Chords...)
	scores := make(map[string]float64, len(r.Scores))
	for k, v := range r.Scores {
		scores[k] = v
	}
	r.Scores = scores
	return r
}

func copyPopulation(p model.PopulationRecord) model.PopulationRecord {
	members := make([]model.FitnessRecord, len(p.Members))
	for i, m := range p.Members {
		members[i] = copyFitness(m)
	}
	p.Members = members
	return p
}
