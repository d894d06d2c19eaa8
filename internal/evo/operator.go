package evo

import (
	"errors"
	"fmt"
	"math/rand"

	"harmonia/internal/config"
	"harmonia/internal/music"
)

// MaxRepairAttempts bounds how often an operator redraws its random choices
// before reporting ErrAlignmentViolation.
const MaxRepairAttempts = 8

// ErrAlignmentViolation means an operator could not produce an aligned
// progression. It indicates a defect, never a user error.
var ErrAlignmentViolation = errors.New("alignment violation")

// Params are the numeric run parameters the operators and driver consult.
type Params struct {
	PopulationSize   int
	EliteCount       int
	CrossoverRate    float64
	MutationRate     float64
	CrossoverPoints  int
	MaxGenerations   int
	StagnationWindow int
	TargetFitness    float64
	Workers          int
}

func ParamsFromConfig(cfg config.RunConfig) Params {
	return Params{
		PopulationSize:   cfg.PopulationSize,
		EliteCount:       cfg.EliteCount,
		CrossoverRate:    cfg.CrossoverRate,
		MutationRate:     cfg.MutationRate,
		CrossoverPoints:  cfg.CrossoverPoints,
		MaxGenerations:   cfg.MaxGenerations,
		StagnationWindow: cfg.StagnationWindow,
		TargetFitness:    cfg.TargetFitness,
		Workers:          cfg.Workers,
	}
}

// Runtime is the explicit context threaded through every operator: the run
// parameters, the single seeded random source, the chord slots and the
// chord vocabulary. It is owned by one goroutine.
type Runtime struct {
	Params     Params
	RNG        *rand.Rand
	Timeline   *music.Timeline
	Vocabulary []music.Symbol
}

// Operator rewrites a single progression.
type Operator interface {
	Name() string
	Apply(rt *Runtime, p music.Progression) (music.Progression, error)
}

func verify(rt *Runtime, op string, p music.Progression) error {
	if err := rt.Timeline.Check(p); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrAlignmentViolation, err)
	}
	return nil
}

func randomSymbol(rng *rand.Rand, vocab []music.Symbol) music.Symbol {
	return vocab[rng.Intn(len(vocab))]
}
