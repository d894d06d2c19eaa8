package fitness

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonia/internal/config"
	"harmonia/internal/heuristic"
	"harmonia/internal/music"
)

func testMelody(t *testing.T) *music.Melody {
	t.Helper()
	m, err := music.NewMelody([]music.NoteSpec{
		{Pitch: "C4", Beats: 1}, {Pitch: "E4", Beats: 1}, {Pitch: "G4", Beats: 1}, {Pitch: "C4", Beats: 1},
	})
	require.NoError(t, err)
	return m
}

func prog(t *testing.T, names ...string) music.Progression {
	t.Helper()
	p := make(music.Progression, len(names))
	for i, name := range names {
		sym, err := music.ParseSymbol(name)
		require.NoError(t, err)
		p[i] = music.Chord{Symbol: sym, Duration: music.TicksPerBeat}
	}
	return p
}

func scorers() [heuristic.Count]heuristic.Scorer {
	return heuristic.NewSet(heuristic.Options{Key: music.Key{Tonic: 0, Mode: music.ModeMajor}})
}

func TestFitnessIsWeightedSum(t *testing.T) {
	m := testMelody(t)
	p := prog(t, "C", "F", "G7", "C")
	w := config.DefaultWeights()

	got, err := Fitness(m, p, w, scorers())
	require.NoError(t, err)

	scores := Score(m, p, scorers())
	want := 0.0
	for i, name := range heuristic.Names {
		want += w[name] * scores[i]
	}
	assert.InDelta(t, want, got, 1e-12)
}

func TestFitnessRejectsMissingTension(t *testing.T) {
	w := config.DefaultWeights()
	delete(w, heuristic.Tension)

	_, err := Fitness(testMelody(t), prog(t, "C", "C", "C", "C"), w, scorers())
	require.ErrorIs(t, err, config.ErrConfiguration)

	_, err = NewEvaluator(testMelody(t), w, scorers())
	var cerr *config.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "weights.tension", cerr.Field)
}

func TestZeroWeightsGiveZeroFitness(t *testing.T) {
	w := config.DefaultWeights()
	for k := range w {
		w[k] = 0
	}
	got, err := Fitness(testMelody(t), prog(t, "C", "G", "C", "G"), w, scorers())
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestParallelFifthsWeightSensitivity(t *testing.T) {
	m := testMelody(t)
	clean := prog(t, "C", "Am", "C", "Am")
	faulty := prog(t, "C", "G", "C", "G")
	require.Equal(t, 1.0, heuristic.Fifths{}.Score(m, clean))
	require.Equal(t, 0.0, heuristic.Fifths{}.Score(m, faulty))

	gap := func(weight float64) float64 {
		w := config.DefaultWeights()
		w[heuristic.ParallelFifths] = weight
		a, err := Fitness(m, clean, w, scorers())
		require.NoError(t, err)
		b, err := Fitness(m, faulty, w, scorers())
		require.NoError(t, err)
		return a - b
	}

	base := gap(0)
	prev := base
	for _, weight := range []float64{0.25, 0.5, 1, 2, 4} {
		g := gap(weight)
		assert.Greater(t, g, prev, "weight %v", weight)
		assert.InDelta(t, weight, g-base, 1e-9)
		prev = g
	}
}

func TestEvaluatorCaches(t *testing.T) {
	ev, err := NewEvaluator(testMelody(t), config.DefaultWeights(), scorers())
	require.NoError(t, err)

	p := prog(t, "C", "F", "G7", "C")
	first := ev.Evaluate(p)
	second := ev.Evaluate(p.Clone())
	assert.Equal(t, first.Fitness, second.Fitness)
	assert.Equal(t, first.Scores, second.Scores)

	hits, misses := ev.CacheStats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, 1, ev.CacheSize())

	second.Progression[0].Symbol.Root = 5
	assert.Equal(t, music.PitchClass(0), ev.Evaluate(p).Progression[0].Root)

	m := first.ScoreMap()
	assert.Len(t, m, heuristic.Count)
	assert.Equal(t, first.Scores[0], m[heuristic.ChordMelodyCongruence])
}

func TestEvaluatorConcurrentUse(t *testing.T) {
	ev, err := NewEvaluator(testMelody(t), config.DefaultWeights(), scorers())
	require.NoError(t, err)
	candidates := []music.Progression{
		prog(t, "C", "F", "G7", "C"),
		prog(t, "C", "Am", "Dm", "G"),
		prog(t, "Em", "Am", "D7", "G"),
	}
	want := make([]float64, len(candidates))
	for i, p := range candidates {
		want[i], err = Fitness(testMelody(t), p, config.DefaultWeights(), scorers())
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				idx := i % len(candidates)
				assert.InDelta(t, want[idx], ev.Evaluate(candidates[idx]).Fitness, 1e-12)
			}
		}()
	}
	wg.Wait()

	hits, misses := ev.CacheStats()
	assert.Equal(t, uint64(400), hits+misses)
	assert.Equal(t, len(candidates), ev.CacheSize())
}
