package harmonia

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonia/internal/config"
	"harmonia/internal/model"
	"harmonia/internal/music"
)

func newTestClient(t *testing.T, dir string, reg prometheus.Registerer) *Client {
	t.Helper()
	client, err := New(Options{
		ArtifactsDir: filepath.Join(dir, "runs"),
		ExportsDir:   filepath.Join(dir, "exports"),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registerer:   reg,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func smallConfig() *config.RunConfig {
	cfg := config.Default()
	cfg.PopulationSize = 16
	cfg.EliteCount = 2
	cfg.MaxGenerations = 8
	cfg.StagnationWindow = 0
	cfg.Workers = 2
	cfg.Seed = 11
	cfg.HarmonicRhythm = 1
	cfg.Key = "C"
	cfg.Vocabulary = []string{"C", "Dm", "Em", "F", "G7", "Am"}
	return &cfg
}

func scaleMelody() []music.NoteSpec {
	return []music.NoteSpec{{Pitch: "C4", Beats: 1}, {Pitch: "E4", Beats: 1}, {Pitch: "G4", Beats: 1}, {Pitch: "C4", Beats: 1}}
}

func TestRunPersistsAndIndexes(t *testing.T) {
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	client := newTestClient(t, dir, reg)
	ctx := context.Background()

	var observed []model.GenerationDiagnostics
	summary, err := client.Run(ctx, RunRequest{
		MelodyName:   "arpeggio",
		Melody:       scaleMelody(),
		Config:       smallConfig(),
		OnGeneration: func(d model.GenerationDiagnostics) { observed = append(observed, d) },
	})
	require.NoError(t, err)

	_, err = uuid.Parse(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, "max_generations", summary.Reason)
	assert.Equal(t, 8, summary.Generations)
	assert.Len(t, summary.Trace, 8)
	assert.Len(t, observed, 8)
	assert.Equal(t, "C", summary.Key)
	require.Len(t, summary.Best.Chords, 4)
	for _, c := range summary.Best.Chords {
		assert.Equal(t, music.Ticks(music.TicksPerBeat), c.Ticks)
	}
	assert.NotEmpty(t, summary.Progression)

	for _, file := range []string{"config.json", "trace.json", "best.json", "trace.csv", "summary.json"} {
		_, err := os.Stat(filepath.Join(summary.ArtifactsDir, file))
		assert.NoError(t, err, file)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)
	assert.Equal(t, "arpeggio", runs[0].MelodyName)
	assert.Equal(t, summary.Progression, runs[0].Progression)

	detail, err := client.Show(ctx, ShowRequest{Latest: true})
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, detail.Run.ID)
	assert.Equal(t, summary.Best.Fitness, detail.Best.Fitness)
	assert.Equal(t, 8, detail.Summary.Generations)

	trace, err := client.Trace(ctx, TraceRequest{RunID: summary.RunID, Limit: 3})
	require.NoError(t, err)
	require.Len(t, trace, 3)
	assert.Equal(t, 7, trace[2].Generation)

	population, err := client.Population(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Len(t, population.Members, 16)
	assert.Equal(t, 7, population.Generation)
	assert.GreaterOrEqual(t, population.Members[0].Fitness, population.Members[15].Fitness)

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, exported.RunID)
	_, err = os.Stat(filepath.Join(exported.Directory, "best.json"))
	assert.NoError(t, err)

	assert.Equal(t, 8.0, testutil.ToFloat64(client.recorder.GenerationsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(client.recorder.RunsTotal.WithLabelValues("max_generations")))
}

func TestShowFallsBackToArtifacts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := newTestClient(t, dir, nil)
	summary, err := first.Run(ctx, RunRequest{MelodyName: "arpeggio", Melody: scaleMelody(), Config: smallConfig()})
	require.NoError(t, err)

	// A second client with a fresh memory store only sees the artifacts.
	second := newTestClient(t, dir, nil)
	detail, err := second.Show(ctx, ShowRequest{RunID: summary.RunID})
	require.NoError(t, err)
	assert.Equal(t, summary.Best.Names(), detail.Best.Names())
	assert.Equal(t, "arpeggio", detail.Run.MelodyName)

	_, err = second.Population(ctx, summary.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = second.Show(ctx, ShowRequest{RunID: "missing"})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunRejectsBadInputBeforeEvolving(t *testing.T) {
	dir := t.TempDir()
	client := newTestClient(t, dir, nil)
	ctx := context.Background()

	cfg := smallConfig()
	delete(cfg.Weights, "tension")
	_, err := client.Run(ctx, RunRequest{Melody: scaleMelody(), Config: cfg})
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "weights.tension", cfgErr.Field)

	_, err = client.Run(ctx, RunRequest{Melody: []music.NoteSpec{{Pitch: "H9", Beats: 1}}, Config: smallConfig()})
	assert.ErrorIs(t, err, music.ErrMalformedInput)

	_, err = client.Run(ctx, RunRequest{Config: smallConfig()})
	assert.ErrorIs(t, err, music.ErrMalformedInput)

	runs, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunStopsOnSignal(t *testing.T) {
	client := newTestClient(t, t.TempDir(), nil)
	stop := make(chan struct{})
	close(stop)

	cfg := smallConfig()
	cfg.MaxGenerations = 500
	summary, err := client.Run(context.Background(), RunRequest{Melody: scaleMelody(), Config: cfg, Stop: stop})
	require.NoError(t, err)
	assert.Equal(t, "stopped", summary.Reason)
	assert.Less(t, summary.Generations, 500)
}

func TestRunHonoursCancelledContext(t *testing.T) {
	client := newTestClient(t, t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Run(ctx, RunRequest{Melody: scaleMelody(), Config: smallConfig()})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestResolveRunID(t *testing.T) {
	client := newTestClient(t, t.TempDir(), nil)

	_, err := client.resolveRunID("abc", true)
	assert.Error(t, err)
	_, err = client.resolveRunID("", false)
	assert.Error(t, err)
	_, err = client.resolveRunID("", true)
	assert.Error(t, err)

	id, err := client.resolveRunID("abc", false)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = client.Export(context.Background(), ExportRequest{})
	assert.Error(t, err)
	_, err = client.Trace(context.Background(), TraceRequest{RunID: "abc", Limit: -1})
	assert.Error(t, err)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	_, err := New(Options{StoreKind: "etcd"})
	assert.Error(t, err)
}
