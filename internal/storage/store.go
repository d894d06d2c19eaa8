package storage

import (
	"context"
	"errors"

	"harmonia/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

// Store persists harmonization runs: the run summary, its generation trace,
// the best progression and the final ranked population.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveTrace(ctx context.Context, runID string, trace []model.GenerationDiagnostics) error
	GetTrace(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveBest(ctx context.Context, runID string, best model.FitnessRecord) error
	GetBest(ctx context.Context, runID string) (model.FitnessRecord, bool, error)
	SavePopulation(ctx context.Context, population model.PopulationRecord) error
	GetPopulation(ctx context.Context, runID string) (model.PopulationRecord, bool, error)
	DeleteRun(ctx context.Context, runID string) error
}
