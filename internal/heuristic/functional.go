package heuristic

import "harmonia/internal/music"

// Function is the harmonic role of a chord within a key.
type Function int

const (
	FunctionOther Function = iota
	FunctionTonic
	FunctionSubdominant
	FunctionDominant
)

func (f Function) String() string {
	switch f {
	case FunctionTonic:
		return "T"
	case FunctionSubdominant:
		return "S"
	case FunctionDominant:
		return "D"
	default:
		return "-"
	}
}

var (
	majorFunctions = map[int]Function{
		0: FunctionTonic, 4: FunctionTonic, 9: FunctionTonic,
		2: FunctionSubdominant, 5: FunctionSubdominant,
		7: FunctionDominant, 11: FunctionDominant,
	}
	minorFunctions = map[int]Function{
		0: FunctionTonic, 3: FunctionTonic, 8: FunctionTonic,
		2: FunctionSubdominant, 5: FunctionSubdominant,
		7: FunctionDominant, 10: FunctionDominant, 11: FunctionDominant,
	}
)

// Classify assigns a function to a chord. Dominant-seventh and diminished-
// seventh chords act as (secondary) dominants on any root; everything else is
// classified by its scale degree.
func Classify(key music.Key, s music.Symbol) Function {
	if s.Quality == music.Dominant7 || s.Quality == music.Diminished7 {
		return FunctionDominant
	}
	table := majorFunctions
	if key.Mode == music.ModeMinor {
		table = minorFunctions
	}
	return table[key.Degree(s.Root)]
}

func functionalStep(from, to Function) bool {
	switch from {
	case FunctionTonic:
		return true
	case FunctionSubdominant:
		return to != FunctionOther
	case FunctionDominant:
		return to == FunctionDominant || to == FunctionTonic
	default:
		return false
	}
}

// Functional counts passed checks: the progression opens and closes on the
// tonic, ends with an authentic cadence, and every transition follows the
// tonic -> subdominant -> dominant -> tonic order.
type Functional struct {
	Key music.Key
}

func (Functional) Name() string { return FunctionalHarmony }

func (f Functional) Score(_ *music.Melody, p music.Progression) float64 {
	n := len(p)
	if n == 0 {
		return 0
	}
	fns := make([]Function, n)
	for i, c := range p {
		fns[i] = Classify(f.Key, c.Symbol)
	}

	passed, checks := 0, 2
	if fns[0] == FunctionTonic {
		passed++
	}
	if fns[n-1] == FunctionTonic {
		passed++
	}
	if n >= 2 {
		checks++
		if fns[n-2] == FunctionDominant && fns[n-1] == FunctionTonic {
			passed++
		}
	}
	for i := 1; i < n; i++ {
		checks++
		if functionalStep(fns[i-1], fns[i]) {
			passed++
		}
	}
	return clamp01(float64(passed) / float64(checks))
}
