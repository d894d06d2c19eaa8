// Package harmonia is the public entry point for harmonizing melodies with
// the genetic search. A Client owns a run store, an artifacts directory and
// the Prometheus recorder shared by every run it starts.
package harmonia

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"harmonia/internal/config"
	"harmonia/internal/evo"
	"harmonia/internal/metrics"
	"harmonia/internal/model"
	"harmonia/internal/music"
	"harmonia/internal/stats"
	"harmonia/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "harmonia.db"
)

// ErrRunNotFound is returned when a run id is unknown to both the store and
// the artifacts directory.
var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
	// Registerer receives the run metrics. Nil uses a private registry.
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
}

type Client struct {
	store    storage.Store
	recorder *metrics.Recorder
	logger   *slog.Logger
	tracer   trace.Tracer

	artifactsDir string
	exportsDir   string

	mu          sync.Mutex
	initialized bool
}

type RunRequest struct {
	MelodyName string
	Melody     []music.NoteSpec
	// Config nil means config.Default().
	Config *config.RunConfig
	// OnGeneration, when set, is called on the driver goroutine after each
	// evaluated generation.
	OnGeneration func(model.GenerationDiagnostics)
	// Stop, when closed, ends the run at the next generation boundary.
	Stop <-chan struct{}
}

type RunSummary struct {
	RunID          string
	ArtifactsDir   string
	Key            string
	Progression    string
	Best           model.FitnessRecord
	BestGeneration int
	Generations    int
	Reason         string
	Trace          []model.GenerationDiagnostics
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	MelodyName   string
	Key          string
	Seed         int64
	Population   int
	Generations  int
	Reason       string
	BestFitness  float64
	Progression  string
}

type ShowRequest struct {
	RunID  string
	Latest bool
}

type RunDetail struct {
	Run     model.RunRecord
	Best    model.FitnessRecord
	Summary stats.TraceSummary
}

type TraceRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("harmonia")
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		recorder:     metrics.NewRecorder(reg),
		logger:       logger,
		tracer:       tracer,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Init prepares the store. Every other method calls it lazily.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

// Run harmonizes one melody, persists the outcome and writes its artifacts.
// A cancelled run that evaluated at least one generation is still persisted
// before the context error is returned.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	cfg := config.Default()
	if req.Config != nil {
		cfg = *req.Config
	}
	melody, err := music.NewMelody(req.Melody)
	if err != nil {
		return RunSummary{}, err
	}

	runID := uuid.NewString()
	logger := c.logger.With("run_id", runID)

	ctx, span := c.tracer.Start(ctx, "harmonia.Run",
		trace.WithAttributes(
			attribute.String("harmonia.run_id", runID),
			attribute.String("harmonia.melody", req.MelodyName),
			attribute.Int("harmonia.notes", melody.Len()),
		),
	)
	defer span.End()

	driver, err := evo.NewDriver(evo.DriverConfig{
		Melody:   melody,
		Config:   cfg,
		Logger:   logger,
		Tracer:   c.tracer,
		Observer: generationObserver{recorder: c.recorder, hook: req.OnGeneration},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunSummary{}, err
	}

	if req.Stop != nil {
		select {
		case <-req.Stop:
			driver.Stop()
		default:
		}
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-req.Stop:
				driver.Stop()
			case <-done:
			}
		}()
	}

	logger.Info("run started",
		"melody", req.MelodyName,
		"notes", melody.Len(),
		"key", driver.Key().String(),
		"slots", driver.Timeline().Len(),
	)
	result, runErr := driver.Run(ctx)
	c.recorder.ObserveRun(string(result.Reason))

	if result.Generations == 0 {
		if runErr == nil {
			runErr = errors.New("run finished without evaluating a generation")
		}
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return RunSummary{}, runErr
	}

	// Persist with a fresh context so cancelled runs keep their partial result.
	persistCtx := context.WithoutCancel(ctx)
	summary, err := c.persist(persistCtx, runID, req.MelodyName, req.Melody, cfg, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunSummary{}, err
	}

	logger.Info("run finished",
		"reason", summary.Reason,
		"generations", summary.Generations,
		"best_fitness", summary.Best.Fitness,
		"progression", summary.Progression,
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return summary, runErr
	}
	span.SetStatus(codes.Ok, "")
	return summary, nil
}

func (c *Client) persist(ctx context.Context, runID, melodyName string, notes []music.NoteSpec, cfg config.RunConfig, result evo.Result) (RunSummary, error) {
	stamp := storage.Stamp()

	best := model.NewFitnessRecord(result.Best)
	best.VersionedRecord = stamp

	run := model.RunRecord{
		VersionedRecord: stamp,
		ID:              runID,
		CreatedAt:       time.Now().UTC(),
		MelodyName:      melodyName,
		Melody:          append([]music.NoteSpec(nil), notes...),
		Key:             result.Key.String(),
		Config:          cfg,
		Generations:     result.Generations,
		BestFitness:     result.Best.Fitness,
		BestGeneration:  result.BestGeneration,
		Reason:          string(result.Reason),
	}

	if err := c.store.SaveRun(ctx, run); err != nil {
		return RunSummary{}, fmt.Errorf("persist run %s: %w", runID, err)
	}
	if err := c.store.SaveTrace(ctx, runID, result.Trace); err != nil {
		return RunSummary{}, fmt.Errorf("persist trace %s: %w", runID, err)
	}
	if err := c.store.SaveBest(ctx, runID, best); err != nil {
		return RunSummary{}, fmt.Errorf("persist best %s: %w", runID, err)
	}
	if result.Final != nil {
		population := model.PopulationRecord{
			VersionedRecord: stamp,
			RunID:           runID,
			Generation:      result.Final.Generation(),
		}
		for _, rec := range result.Final.Ranked() {
			member := model.NewFitnessRecord(rec)
			member.VersionedRecord = stamp
			population.Members = append(population.Members, member)
		}
		if err := c.store.SavePopulation(ctx, population); err != nil {
			return RunSummary{}, fmt.Errorf("persist population %s: %w", runID, err)
		}
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Run:   run,
		Trace: result.Trace,
		Best:  best,
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("write artifacts %s: %w", runID, err)
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.NewRunIndexEntry(run, best)); err != nil {
		return RunSummary{}, fmt.Errorf("update run index: %w", err)
	}

	return RunSummary{
		RunID:          runID,
		ArtifactsDir:   runDir,
		Key:            run.Key,
		Progression:    strings.Join(best.Names(), " "),
		Best:           best,
		BestGeneration: result.BestGeneration,
		Generations:    result.Generations,
		Reason:         run.Reason,
		Trace:          result.Trace,
	}, nil
}

// Runs lists indexed runs, newest first.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			MelodyName:   e.MelodyName,
			Key:          e.Key,
			Seed:         e.Seed,
			Population:   e.PopulationSize,
			Generations:  e.Generations,
			Reason:       e.Reason,
			BestFitness:  e.BestFitness,
			Progression:  e.Progression,
		})
	}
	return out, nil
}

// Show returns the run record, best progression and trace summary. The store
// is consulted first and the artifacts directory second, so runs made by an
// earlier process with the memory store remain visible.
func (c *Client) Show(ctx context.Context, req ShowRequest) (RunDetail, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return RunDetail{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunDetail{}, err
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !ok {
		run, ok, err = stats.ReadRunRecord(c.artifactsDir, runID)
		if err != nil {
			return RunDetail{}, err
		}
		if !ok {
			return RunDetail{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
	}

	best, ok, err := c.store.GetBest(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !ok {
		best, _, err = stats.ReadBest(c.artifactsDir, runID)
		if err != nil {
			return RunDetail{}, err
		}
	}

	diags, err := c.Trace(ctx, TraceRequest{RunID: runID})
	if err != nil {
		return RunDetail{}, err
	}
	return RunDetail{Run: run, Best: best, Summary: stats.SummarizeTrace(runID, diags)}, nil
}

// Trace returns per-generation diagnostics. Limit keeps the last N entries.
func (c *Client) Trace(ctx context.Context, req TraceRequest) ([]model.GenerationDiagnostics, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	diags, ok, err := c.store.GetTrace(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diags, ok, err = stats.ReadTrace(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
	}
	if req.Limit > 0 && len(diags) > req.Limit {
		diags = diags[len(diags)-req.Limit:]
	}
	return diags, nil
}

// Population returns the final ranked population of a run held in the store.
func (c *Client) Population(ctx context.Context, runID string) (model.PopulationRecord, error) {
	if err := c.Init(ctx); err != nil {
		return model.PopulationRecord{}, err
	}
	population, ok, err := c.store.GetPopulation(ctx, runID)
	if err != nil {
		return model.PopulationRecord{}, err
	}
	if !ok {
		return model.PopulationRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return population, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Delete removes a run from the store. Artifacts on disk are left alone.
func (c *Client) Delete(ctx context.Context, runID string) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	return c.store.DeleteRun(ctx, runID)
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id is required")
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

type generationObserver struct {
	recorder *metrics.Recorder
	hook     func(model.GenerationDiagnostics)
}

func (o generationObserver) ObserveGeneration(d model.GenerationDiagnostics) {
	o.recorder.ObserveGeneration(d)
	if o.hook != nil {
		o.hook(d)
	}
}
