package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonia/internal/heuristic"
	"harmonia/internal/music"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	syms, err := cfg.Symbols()
	require.NoError(t, err)
	assert.Len(t, syms, 8)

	table, err := cfg.Transitions()
	require.NoError(t, err)
	g7, _ := music.ParseSymbol("G7")
	cmaj7, _ := music.ParseSymbol("Cmaj7")
	assert.True(t, table.Allows(g7, cmaj7))
	assert.Equal(t, 4*music.TicksPerBeat, cfg.SlotTicks())
}

func TestWeightsMissingKey(t *testing.T) {
	w := DefaultWeights()
	delete(w, heuristic.Tension)

	err := w.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "weights.tension", cerr.Field)
}

func TestWeightsRejectBadValues(t *testing.T) {
	cases := map[string]func(Weights){
		"negative": func(w Weights) { w[heuristic.ChordVariety] = -0.1 },
		"nan":      func(w Weights) { w[heuristic.HarmonicFlow] = math.NaN() },
		"inf":      func(w Weights) { w[heuristic.ParallelFifths] = math.Inf(1) },
		"unknown":  func(w Weights) { w["loudness"] = 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			w := DefaultWeights()
			mutate(w)
			assert.ErrorIs(t, w.Validate(), ErrConfiguration)
		})
	}

	zero := DefaultWeights()
	for k := range zero {
		zero[k] = 0
	}
	assert.NoError(t, zero.Validate())
}

func TestWeightsVectorOrder(t *testing.T) {
	v := DefaultWeights().Vector()
	assert.Equal(t, 0.5, v[0])
	assert.Equal(t, 0.4, v[heuristic.Count-1])
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name  string
		field string
		edit  func(*RunConfig)
	}{
		{"population", "population_size", func(c *RunConfig) { c.PopulationSize = 0 }},
		{"elite over population", "elite_count", func(c *RunConfig) { c.EliteCount = c.PopulationSize + 1 }},
		{"elite zero", "elite_count", func(c *RunConfig) { c.EliteCount = 0 }},
		{"mutation", "mutation_rate", func(c *RunConfig) { c.MutationRate = 1.5 }},
		{"crossover nan", "crossover_rate", func(c *RunConfig) { c.CrossoverRate = math.NaN() }},
		{"generations", "max_generations", func(c *RunConfig) { c.MaxGenerations = 0 }},
		{"selection", "selection", func(c *RunConfig) { c.Selection = "rank" }},
		{"points", "crossover_points", func(c *RunConfig) { c.CrossoverPoints = 3 }},
		{"vocabulary empty", "vocabulary", func(c *RunConfig) { c.Vocabulary = nil }},
		{"vocabulary bad", "vocabulary", func(c *RunConfig) { c.Vocabulary = []string{"C", "Hm"} }},
		{"key", "key", func(c *RunConfig) { c.Key = "X lydian" }},
		{"transitions", "preferred_transitions", func(c *RunConfig) { c.PreferredTransitions = map[string][]string{"C": {"?"}} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.edit(&cfg)
			err := cfg.Validate()
			var cerr *ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.field, cerr.Field)
		})
	}
}

func TestSymbolsDropDuplicates(t *testing.T) {
	cfg := Default()
	cfg.Vocabulary = []string{"C", "Cmaj", "G7", "C"}
	syms, err := cfg.Symbols()
	require.NoError(t, err)
	assert.Len(t, syms, 2)
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte("population_size: 40\nselection: tournament\nharmonic_rhythm: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.PopulationSize)
	assert.Equal(t, SelectionTournament, cfg.Selection)
	assert.Equal(t, music.TicksPerBeat, cfg.SlotTicks())
	assert.Equal(t, DefaultWeights(), cfg.Weights)
	assert.Equal(t, 0.05, cfg.MutationRate)
	require.NoError(t, cfg.Validate())
}

func TestParseWeightsReplaceDefaults(t *testing.T) {
	doc := `
weights:
  chord_melody_congruence: 1
  chord_variety: 1
  harmonic_flow: 1
  functional_harmony: 1
  parallel_fifths: 1
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	err = cfg.Validate()
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "weights.tension", cerr.Field)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 99\nkey: A minor\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Seed)

	k, err := cfg.ResolveKey(nil)
	require.NoError(t, err)
	assert.Equal(t, music.ModeMinor, k.Mode)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseMelodyForms(t *testing.T) {
	doc := `
name: mixed
notes:
  - C4
  - "E4:0.5"
  - {pitch: G4, beats: 2}
`
	f, err := ParseMelody([]byte(doc))
	require.NoError(t, err)
	specs := f.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, music.NoteSpec{Pitch: "C4", Beats: 1}, specs[0])
	assert.Equal(t, music.NoteSpec{Pitch: "E4", Beats: 0.5}, specs[1])
	assert.Equal(t, music.NoteSpec{Pitch: "G4", Beats: 2}, specs[2])

	_, err = ParseMelody([]byte("notes:\n  - \"C4:x\"\n"))
	assert.Error(t, err)
}

func TestTwinkleBuildsMelody(t *testing.T) {
	m, err := music.NewMelody(Twinkle().Specs())
	require.NoError(t, err)
	assert.Equal(t, 42, m.Len())
	assert.Equal(t, 48*music.TicksPerBeat, m.Duration())
	assert.Equal(t, music.PitchClass(0), music.EstimateKey(m).Tonic)
}

func TestMarshalRoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Key = "Am"
	cfg.TargetFitness = 3.5

	data, err := Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "population_size: 100")

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
	assert.NoError(t, parsed.Validate())
}
