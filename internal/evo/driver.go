package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"harmonia/internal/config"
	"harmonia/internal/fitness"
	"harmonia/internal/heuristic"
	"harmonia/internal/model"
	"harmonia/internal/music"
)

// State is the phase of the evolution loop.
type State int

const (
	StateInitialized State = iota
	StateEvaluating
	StateSelecting
	StateReproducing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateEvaluating:
		return "evaluating"
	case StateSelecting:
		return "selecting"
	case StateReproducing:
		return "reproducing"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason records why a run terminated.
type Reason string

const (
	ReasonMaxGenerations Reason = "max_generations"
	ReasonStagnation     Reason = "stagnation"
	ReasonTargetFitness  Reason = "target_fitness"
	ReasonStopped        Reason = "stopped"
	ReasonCancelled      Reason = "cancelled"
)

// Observer receives the diagnostics of every evaluated generation on the
// driver goroutine.
type Observer interface {
	ObserveGeneration(d model.GenerationDiagnostics)
}

type DriverConfig struct {
	Melody   *music.Melody
	Config   config.RunConfig
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Observer Observer
}

// Result is the outcome of a run.
type Result struct {
	Best           fitness.Record
	BestGeneration int
	Generations    int
	Reason         Reason
	Key            music.Key
	Trace          []model.GenerationDiagnostics
	Final          *Population
}

// Driver runs the genetic search as an explicit state machine. All state,
// including the random source, is owned by the goroutine calling Step or
// Run; only Stop may be called concurrently.
type Driver struct {
	rt        *Runtime
	key       music.Key
	evaluator *fitness.Evaluator
	selector  Selector
	crossover Crossover
	mutator   Mutator
	logger    *slog.Logger
	tracer    trace.Tracer
	observer  Observer

	state          State
	generation     int
	pending        []music.Progression
	carried        []fitness.Record
	parents        [][2]fitness.Record
	population     *Population
	best           fitness.Record
	hasBest        bool
	bestGeneration int
	trace          []model.GenerationDiagnostics
	reason         Reason
	lastHits       uint64
	lastMisses     uint64

	stop atomic.Bool
}

// NewDriver validates the configuration and prepares generation 0. Every
// configuration problem is reported here, before any evaluation.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if cfg.Melody == nil || cfg.Melody.Len() == 0 {
		return nil, &music.MalformedInputError{Index: -1, Reason: "melody is required"}
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}
	vocab, err := cfg.Config.Symbols()
	if err != nil {
		return nil, err
	}
	transitions, err := cfg.Config.Transitions()
	if err != nil {
		return nil, err
	}
	key, err := cfg.Config.ResolveKey(cfg.Melody)
	if err != nil {
		return nil, err
	}
	selector, err := ResolveSelector(cfg.Config)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "selection", Reason: err.Error()}
	}
	scorers := heuristic.NewSet(heuristic.Options{Key: key, Preferred: transitions})
	evaluator, err := fitness.NewEvaluator(cfg.Melody, cfg.Config.Weights, scorers)
	if err != nil {
		return nil, err
	}

	params := ParamsFromConfig(cfg.Config)
	if params.Workers <= 0 {
		params.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("harmonia/evo")
	}

	return &Driver{
		rt: &Runtime{
			Params:     params,
			RNG:        rand.New(rand.NewSource(cfg.Config.Seed)),
			Timeline:   music.NewTimeline(cfg.Melody, cfg.Config.SlotTicks()),
			Vocabulary: vocab,
		},
		key:       key,
		evaluator: evaluator,
		selector:  selector,
		crossover: Crossover{Points: params.CrossoverPoints},
		mutator:   Mutator{Rate: params.MutationRate},
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
		observer:  cfg.Observer,
		state:     StateInitialized,
	}, nil
}

// Step performs exactly one state transition and returns the new state.
// Context cancellation is honoured between transitions.
func (d *Driver) Step(ctx context.Context) (State, error) {
	if d.state == StateTerminated {
		return d.state, nil
	}
	if err := ctx.Err(); err != nil {
		d.terminate(ReasonCancelled)
		return d.state, err
	}

	var err error
	switch d.state {
	case StateInitialized:
		err = d.initialize()
	case StateEvaluating:
		err = d.evaluate(ctx)
	case StateSelecting:
		err = d.selectParents()
	case StateReproducing:
		err = d.reproduce()
	}
	return d.state, err
}

// Run steps until the driver terminates.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	ctx, span := d.tracer.Start(ctx, "evo.Run",
		trace.WithAttributes(
			attribute.Int("evo.population_size", d.rt.Params.PopulationSize),
			attribute.Int("evo.max_generations", d.rt.Params.MaxGenerations),
			attribute.Int("evo.slots", d.rt.Timeline.Len()),
			attribute.String("evo.key", d.key.String()),
		),
	)
	defer span.End()

	for d.state != StateTerminated {
		if _, err := d.Step(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return d.Result(), err
		}
	}
	span.SetAttributes(
		attribute.String("evo.reason", string(d.reason)),
		attribute.Int("evo.generations", len(d.trace)),
		attribute.Float64("evo.best_fitness", d.best.Fitness),
	)
	span.SetStatus(codes.Ok, "")
	return d.Result(), nil
}

// Stop asks the driver to terminate at the next generation boundary. It is
// safe to call from any goroutine.
func (d *Driver) Stop() {
	d.stop.Store(true)
}

func (d *Driver) State() State {
	return d.state
}

func (d *Driver) Generation() int {
	return d.generation
}

func (d *Driver) Key() music.Key {
	return d.key
}

func (d *Driver) Timeline() *music.Timeline {
	return d.rt.Timeline
}

// Population returns the most recently evaluated generation, or nil.
func (d *Driver) Population() *Population {
	return d.population
}

// Best returns the best record seen so far across all generations.
func (d *Driver) Best() (fitness.Record, bool) {
	return d.best, d.hasBest
}

func (d *Driver) Result() Result {
	return Result{
		Best:           d.best,
		BestGeneration: d.bestGeneration,
		Generations:    len(d.trace),
		Reason:         d.reason,
		Key:            d.key,
		Trace:          append([]model.GenerationDiagnostics(nil), d.trace...),
		Final:          d.population,
	}
}

func (d *Driver) initialize() error {
	initial, err := RandomPopulation(d.rt, d.rt.Params.PopulationSize)
	if err != nil {
		return err
	}
	d.pending = initial
	d.state = StateEvaluating
	d.logger.Debug("population initialized",
		"size", len(initial),
		"slots", d.rt.Timeline.Len(),
		"key", d.key.String(),
		"selection", d.selector.Name(),
	)
	return nil
}

func (d *Driver) evaluate(ctx context.Context) error {
	ctx, span := d.tracer.Start(ctx, "evo.Generation",
		trace.WithAttributes(attribute.Int("evo.generation", d.generation)),
	)
	defer span.End()

	scored, err := evaluatePopulation(ctx, d.evaluator, d.pending, d.rt.Params.Workers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			d.terminate(ReasonCancelled)
		}
		return err
	}

	// Elites come first so they win fitness ties against their offspring.
	records := make([]fitness.Record, 0, len(d.carried)+len(scored))
	records = append(records, d.carried...)
	records = append(records, scored...)
	d.population = NewPopulation(d.generation, records)
	d.pending, d.carried = nil, nil

	top, _ := d.population.Best()
	if !d.hasBest || top.Fitness > d.best.Fitness {
		d.best = top
		d.hasBest = true
		d.bestGeneration = d.generation
		d.logger.Info("best fitness improved",
			"generation", d.generation,
			"fitness", top.Fitness,
			"progression", top.Progression.String(),
		)
	}

	diag := d.diagnostics()
	d.trace = append(d.trace, diag)
	if d.observer != nil {
		d.observer.ObserveGeneration(diag)
	}
	span.SetAttributes(
		attribute.Float64("evo.best_fitness", diag.BestFitness),
		attribute.Float64("evo.mean_fitness", diag.MeanFitness),
		attribute.Int("evo.distinct", diag.Distinct),
	)
	d.logger.Debug("generation evaluated",
		"generation", diag.Generation,
		"best", diag.BestFitness,
		"mean", diag.MeanFitness,
		"stddev", diag.StdDevFitness,
		"distinct", diag.Distinct,
		"evaluations", diag.Evaluations,
		"cache_hits", diag.CacheHits,
	)

	if reason, done := d.shouldTerminate(); done {
		d.terminate(reason)
		return nil
	}
	d.state = StateSelecting
	return nil
}

func (d *Driver) diagnostics() model.GenerationDiagnostics {
	stats := d.population.Stats()
	hits, misses := d.evaluator.CacheStats()
	diag := model.GenerationDiagnostics{
		Generation:    d.generation,
		BestFitness:   stats.Max,
		MeanFitness:   stats.Mean,
		StdDevFitness: stats.StdDev,
		MinFitness:    stats.Min,
		Distinct:      stats.Distinct,
		RunningBest:   d.best.Fitness,
		Evaluations:   misses - d.lastMisses,
		CacheHits:     hits - d.lastHits,
	}
	d.lastHits, d.lastMisses = hits, misses
	return diag
}

func (d *Driver) shouldTerminate() (Reason, bool) {
	p := d.rt.Params
	switch {
	case p.TargetFitness > 0 && d.best.Fitness >= p.TargetFitness:
		return ReasonTargetFitness, true
	case d.generation+1 >= p.MaxGenerations:
		return ReasonMaxGenerations, true
	case p.StagnationWindow > 0 && d.generation-d.bestGeneration >= p.StagnationWindow:
		return ReasonStagnation, true
	case d.stop.Load():
		return ReasonStopped, true
	}
	return "", false
}

func (d *Driver) terminate(reason Reason) {
	d.state = StateTerminated
	d.reason = reason
	d.logger.Info("evolution terminated",
		"reason", string(reason),
		"generations", len(d.trace),
		"best_fitness", d.best.Fitness,
		"best_generation", d.bestGeneration,
		"progression", d.best.Progression.String(),
	)
}

func (d *Driver) selectParents() error {
	children := d.rt.Params.PopulationSize - d.rt.Params.EliteCount
	ranked := d.population.Ranked()
	pairs := make([][2]fitness.Record, 0, (children+1)/2)
	for len(pairs)*2 < children {
		a, err := d.selector.PickParent(d.rt.RNG, ranked)
		if err != nil {
			return fmt.Errorf("select parent: %w", err)
		}
		b, err := d.selector.PickParent(d.rt.RNG, ranked)
		if err != nil {
			return fmt.Errorf("select parent: %w", err)
		}
		pairs = append(pairs, [2]fitness.Record{a, b})
	}
	d.parents = pairs
	d.state = StateReproducing
	return nil
}

func (d *Driver) reproduce() error {
	p := d.rt.Params
	ranked := d.population.Ranked()
	d.carried = ranked[:p.EliteCount]

	want := p.PopulationSize - p.EliteCount
	children := make([]music.Progression, 0, want)
	for _, pair := range d.parents {
		left, right := pair[0].Progression.Clone(), pair[1].Progression.Clone()
		if d.rt.RNG.Float64() < p.CrossoverRate {
			var err error
			left, right, err = d.crossover.Apply(d.rt, pair[0].Progression, pair[1].Progression)
			if err != nil {
				return err
			}
		}
		for _, child := range []music.Progression{left, right} {
			if len(children) == want {
				break
			}
			mutated, err := d.mutator.Apply(d.rt, child)
			if err != nil {
				return err
			}
			children = append(children, mutated)
		}
	}

	d.pending = children
	d.parents = nil
	d.generation++
	d.state = StateEvaluating
	return nil
}
