package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonia/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitWritesLoadableFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "harmonia.yaml")
	melodyPath := filepath.Join(dir, "twinkle.yaml")

	out, err := execute(t, "init", "--config-out", cfgPath, "--melody-out", melodyPath)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote config=")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	melody, err := config.LoadMelody(melodyPath)
	require.NoError(t, err)
	assert.Equal(t, config.Twinkle().Specs(), melody.Specs())

	_, err = execute(t, "init", "--config-out", cfgPath)
	assert.Error(t, err, "existing file must not be overwritten without --force")
	_, err = execute(t, "init", "--config-out", cfgPath, "--force")
	assert.NoError(t, err)
}

func TestRunThenInspect(t *testing.T) {
	dir := t.TempDir()
	runsDir := filepath.Join(dir, "runs")

	cfg := config.Default()
	cfg.PopulationSize = 12
	cfg.MaxGenerations = 5
	cfg.Workers = 2
	cfg.Seed = 3
	data, err := config.Marshal(cfg)
	require.NoError(t, err)
	cfgPath := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))

	melodyPath := filepath.Join(dir, "melody.yaml")
	require.NoError(t, os.WriteFile(melodyPath, []byte("name: phrase\nnotes: [\"C4:2\", \"E4:2\", \"G4:2\", \"C5:2\"]\n"), 0o644))

	out, err := execute(t, "--runs-dir", runsDir, "--log-level", "error",
		"run", "--config", cfgPath, "--melody", melodyPath, "--progress", "--key", "C")
	require.NoError(t, err)
	assert.Contains(t, out, "gen=0 ")
	assert.Contains(t, out, "reason=max_generations")
	assert.Contains(t, out, "progression: ")
	assert.Contains(t, out, "parallel_fifths")

	out, err = execute(t, "--runs-dir", runsDir, "runs", "--json")
	require.NoError(t, err)
	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "phrase", items[0]["MelodyName"])
	runID, _ := items[0]["RunID"].(string)
	require.NotEmpty(t, runID)

	out, err = execute(t, "--runs-dir", runsDir, "show", "--latest")
	require.NoError(t, err)
	assert.Contains(t, out, "run_id="+runID)
	assert.Contains(t, out, "melody=phrase notes=4 key=C")

	out, err = execute(t, "--runs-dir", runsDir, "trace", runID, "--limit", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "gen=4 "))

	exportDir := filepath.Join(dir, "exported")
	out, err = execute(t, "--runs-dir", runsDir, "export", "--latest", "--out", exportDir)
	require.NoError(t, err)
	assert.Contains(t, out, "exported run_id="+runID)
	_, err = os.Stat(filepath.Join(exportDir, runID, "trace.csv"))
	assert.NoError(t, err)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("population_size: 4\nelite_count: 9\n"), 0o644))

	_, err := execute(t, "--runs-dir", filepath.Join(dir, "runs"), "--log-level", "error", "run", "--config", cfgPath)
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "elite_count", cfgErr.Field)
}

func TestRunsWithoutHistory(t *testing.T) {
	out, err := execute(t, "--runs-dir", t.TempDir(), "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs found")

	_, err = execute(t, "--runs-dir", t.TempDir(), "runs", "--limit", "0")
	assert.Error(t, err)
}

func TestLoggerOptions(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "debug", "json")
	require.NoError(t, err)
	logger.Debug("hello", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = newLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}
