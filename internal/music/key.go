package music

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"
)

type Mode int

const (
	ModeMajor Mode = iota
	ModeMinor
)

func (m Mode) String() string {
	if m == ModeMinor {
		return "minor"
	}
	return "major"
}

// Key anchors functional analysis: a tonic and a mode.
type Key struct {
	Tonic PitchClass
	Mode  Mode
}

func (k Key) String() string {
	if k.Mode == ModeMinor {
		return k.Tonic.String() + "m"
	}
	return k.Tonic.String()
}

// Degree returns the semitone offset of pc above the tonic.
func (k Key) Degree(pc PitchClass) int {
	return k.Tonic.Interval(pc)
}

// ParseKey accepts "C", "F#", "Am", "Ebm", "C major", "A minor".
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	pc, n, err := ParsePitchClass(s)
	if err != nil {
		return Key{}, fmt.Errorf("key %q: %w", s, err)
	}
	switch strings.ToLower(strings.TrimSpace(s[n:])) {
	case "", "maj", "major":
		return Key{Tonic: pc, Mode: ModeMajor}, nil
	case "m", "min", "minor":
		return Key{Tonic: pc, Mode: ModeMinor}, nil
	default:
		return Key{}, fmt.Errorf("key %q: unknown mode %q", s, s[n:])
	}
}

// Krumhansl-Kessler key profiles, indexed by degree above the tonic.
var (
	majorProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// EstimateKey picks the key whose profile best correlates with the melody's
// duration-weighted pitch-class histogram. Ties resolve to the earliest
// candidate (C major first), keeping the result deterministic.
func EstimateKey(m *Melody) Key {
	histogram := make([]float64, 12)
	for _, n := range m.notes {
		histogram[n.PitchClass()] += float64(n.Duration)
	}

	best := Key{}
	bestScore := -2.0
	rotated := make([]float64, 12)
	for _, mode := range []Mode{ModeMajor, ModeMinor} {
		profile := majorProfile
		if mode == ModeMinor {
			profile = minorProfile
		}
		for tonic := PitchClass(0); tonic < 12; tonic++ {
			for degree := 0; degree < 12; degree++ {
				rotated[degree] = histogram[tonic.Transpose(degree)]
			}
			score := stat.Correlation(rotated, profile, nil)
			if score > bestScore {
				best = Key{Tonic: tonic, Mode: mode}
				bestScore = score
			}
		}
	}
	return best
}
