package model

import (
	"fmt"
	"time"

	"harmonia/internal/config"
	"harmonia/internal/fitness"
	"harmonia/internal/heuristic"
	"harmonia/internal/music"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord is the persisted summary of one harmonization run.
type RunRecord struct {
	VersionedRecord
	ID             string           `json:"id"`
	CreatedAt      time.Time        `json:"created_at"`
	MelodyName     string           `json:"melody_name,omitempty"`
	Melody         []music.NoteSpec `json:"melody"`
	Key            string           `json:"key"`
	Config         config.RunConfig `json:"config"`
	Generations    int              `json:"generations"`
	BestFitness    float64          `json:"best_fitness"`
	BestGeneration int              `json:"best_generation"`
	Reason         string           `json:"reason"`
}

// GenerationDiagnostics summarizes one evaluated generation.
type GenerationDiagnostics struct {
	Generation    int     `json:"generation"`
	BestFitness   float64 `json:"best_fitness"`
	MeanFitness   float64 `json:"mean_fitness"`
	StdDevFitness float64 `json:"stddev_fitness"`
	MinFitness    float64 `json:"min_fitness"`
	Distinct      int     `json:"distinct"`
	RunningBest   float64 `json:"running_best"`
	Evaluations   uint64  `json:"evaluations"`
	CacheHits     uint64  `json:"cache_hits"`
}

type ChordRecord struct {
	Symbol string      `json:"symbol"`
	Ticks  music.Ticks `json:"ticks"`
}

// FitnessRecord is the persisted form of an evaluated progression.
type FitnessRecord struct {
	VersionedRecord
	Chords  []ChordRecord      `json:"chords"`
	Fitness float64            `json:"fitness"`
	Scores  map[string]float64 `json:"scores"`
}

// PopulationRecord is a persisted generation snapshot in rank order.
type PopulationRecord struct {
	VersionedRecord
	RunID      string          `json:"run_id"`
	Generation int             `json:"generation"`
	Members    []FitnessRecord `json:"members"`
}

func NewFitnessRecord(r fitness.Record) FitnessRecord {
	chords := make([]ChordRecord, len(r.Progression))
	for i, c := range r.Progression {
		chords[i] = ChordRecord{Symbol: c.Symbol.String(), Ticks: c.Duration}
	}
	return FitnessRecord{
		Chords:  chords,
		Fitness: r.Fitness,
		Scores:  r.ScoreMap(),
	}
}

// Record parses the persisted chords back into a fitness record.
func (r FitnessRecord) Record() (fitness.Record, error) {
	p := make(music.Progression, len(r.Chords))
	for i, c := range r.Chords {
		sym, err := music.ParseSymbol(c.Symbol)
		if err != nil {
			return fitness.Record{}, fmt.Errorf("chord %d: %w", i, err)
		}
		p[i] = music.Chord{Symbol: sym, Duration: c.Ticks}
	}
	out := fitness.Record{Progression: p, Fitness: r.Fitness}
	for i, name := range heuristic.Names {
		out.Scores[i] = r.Scores[name]
	}
	return out, nil
}

// Names returns the chord symbols in order.
func (r FitnessRecord) Names() []string {
	out := make([]string, len(r.Chords))
	for i, c := range r.Chords {
		out[i] = c.Symbol
	}
	return out
}
