// Package config defines the run configuration surface of the harmonizer and
// its validation. Every validation failure is a *ConfigurationError.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"harmonia/internal/heuristic"
	"harmonia/internal/music"
)

const (
	SelectionRoulette   = "roulette"
	SelectionTournament = "tournament"
	SelectionElite      = "elite"
)

// RunConfig holds every parameter of one harmonization run.
type RunConfig struct {
	PopulationSize   int     `yaml:"population_size" json:"population_size" validate:"gte=1"`
	EliteCount       int     `yaml:"elite_count" json:"elite_count" validate:"gte=1,ltefield=PopulationSize"`
	CrossoverRate    float64 `yaml:"crossover_rate" json:"crossover_rate" validate:"gte=0,lte=1"`
	MutationRate     float64 `yaml:"mutation_rate" json:"mutation_rate" validate:"gte=0,lte=1"`
	MaxGenerations   int     `yaml:"max_generations" json:"max_generations" validate:"gte=1"`
	StagnationWindow int     `yaml:"stagnation_window" json:"stagnation_window" validate:"gte=0"`
	// TargetFitness stops the run once reached; 0 disables it.
	TargetFitness   float64 `yaml:"target_fitness" json:"target_fitness" validate:"gte=0"`
	Seed            int64   `yaml:"seed" json:"seed"`
	Workers         int     `yaml:"workers" json:"workers" validate:"gte=0"`
	Selection       string  `yaml:"selection" json:"selection" validate:"oneof=roulette tournament elite"`
	TournamentSize  int     `yaml:"tournament_size" json:"tournament_size" validate:"gte=0"`
	CrossoverPoints int     `yaml:"crossover_points" json:"crossover_points" validate:"oneof=1 2"`
	// HarmonicRhythm is the chord slot length in beats; 0 places one chord under each melody note.
	HarmonicRhythm       float64             `yaml:"harmonic_rhythm" json:"harmonic_rhythm" validate:"gte=0"`
	Key                  string              `yaml:"key" json:"key,omitempty"`
	Vocabulary           []string            `yaml:"vocabulary" json:"vocabulary" validate:"min=1"`
	PreferredTransitions map[string][]string `yaml:"preferred_transitions" json:"preferred_transitions,omitempty"`
	Weights              Weights             `yaml:"weights" json:"weights" validate:"-"`
}

// DefaultVocabulary is the jazz chord set of the reference setup.
func DefaultVocabulary() []string {
	return []string{"Cmaj7", "D7", "E7", "Fsus2", "Fm6", "G7", "Am7add11", "Bdim7"}
}

// DefaultTransitions is the reference table of preferred successions.
func DefaultTransitions() map[string][]string {
	return map[string][]string{
		"Cmaj7":    {"G7", "Am7add11", "Fsus2", "E7", "Bdim7"},
		"D7":       {"Fsus2"},
		"E7":       {"Am7add11", "Fsus2", "Cmaj7", "G7"},
		"Fsus2":    {"Fm6"},
		"Fm6":      {"Cmaj7"},
		"G7":       {"Am7add11", "Cmaj7"},
		"Am7add11": {"D7", "E7", "Fsus2"},
		"Bdim7":    {"Cmaj7"},
	}
}

// Default returns the reference run settings.
func Default() RunConfig {
	return RunConfig{
		PopulationSize:       100,
		EliteCount:           2,
		CrossoverRate:        0.9,
		MutationRate:         0.05,
		MaxGenerations:       1000,
		StagnationWindow:     200,
		Seed:                 1,
		Workers:              runtime.NumCPU(),
		Selection:            SelectionRoulette,
		TournamentSize:       3,
		CrossoverPoints:      1,
		HarmonicRhythm:       4,
		Vocabulary:           DefaultVocabulary(),
		PreferredTransitions: DefaultTransitions(),
		Weights:              DefaultWeights(),
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks ranges, weights, key, vocabulary and transitions.
func (c RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			reason := fe.Tag()
			if fe.Param() != "" {
				reason += "=" + fe.Param()
			}
			return configErr(fe.Field(), "must satisfy %s, got %v", reason, fe.Value())
		}
		return configErr("config", "%v", err)
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if _, err := c.Symbols(); err != nil {
		return err
	}
	if _, err := c.Transitions(); err != nil {
		return err
	}
	if c.Key != "" {
		if _, err := music.ParseKey(c.Key); err != nil {
			return configErr("key", "%v", err)
		}
	}
	if c.HarmonicRhythm > 0 {
		if _, err := music.BeatsToTicks(c.HarmonicRhythm); err != nil {
			return configErr("harmonic_rhythm", "%v", err)
		}
	}
	return nil
}

// Symbols parses the vocabulary, dropping duplicates while keeping order.
func (c RunConfig) Symbols() ([]music.Symbol, error) {
	seen := make(map[music.Symbol]struct{}, len(c.Vocabulary))
	out := make([]music.Symbol, 0, len(c.Vocabulary))
	for _, name := range c.Vocabulary {
		sym, err := music.ParseSymbol(name)
		if err != nil {
			return nil, configErr("vocabulary", "%v", err)
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil, configErr("vocabulary", "at least one chord is required")
	}
	return out, nil
}

// Transitions parses the preferred transition table.
func (c RunConfig) Transitions() (heuristic.Transitions, error) {
	table, err := heuristic.ParseTransitions(c.PreferredTransitions)
	if err != nil {
		return nil, configErr("preferred_transitions", "%v", err)
	}
	return table, nil
}

// ResolveKey returns the configured key, or estimates one from the melody.
func (c RunConfig) ResolveKey(m *music.Melody) (music.Key, error) {
	if c.Key == "" {
		return music.EstimateKey(m), nil
	}
	k, err := music.ParseKey(c.Key)
	if err != nil {
		return music.Key{}, configErr("key", "%v", err)
	}
	return k, nil
}

// SlotTicks converts the harmonic rhythm to ticks; 0 means one slot per note.
func (c RunConfig) SlotTicks() music.Ticks {
	if c.HarmonicRhythm <= 0 {
		return 0
	}
	t, err := music.BeatsToTicks(c.HarmonicRhythm)
	if err != nil {
		return 0
	}
	return t
}

// Load reads a YAML run configuration on top of Default. A weights section,
// when present, replaces the default weights entirely, so it must name all
// six heuristics.
func Load(path string) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes on top of Default.
func Parse(data []byte) (RunConfig, error) {
	cfg := Default()
	cfg.Weights = nil
	cfg.PreferredTransitions = nil
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return RunConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if _, ok := raw["weights"]; !ok {
		cfg.Weights = DefaultWeights()
	}
	if _, ok := raw["preferred_transitions"]; !ok && cfg.PreferredTransitions == nil {
		cfg.PreferredTransitions = DefaultTransitions()
	}
	if cfg.Weights == nil {
		cfg.Weights = Weights{}
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML accepted by Parse.
func Marshal(cfg RunConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
