package music

import (
	"fmt"
	"math/bits"
	"strings"
)

// PitchSet is a bitmask of pitch classes.
type PitchSet uint16

func (s PitchSet) Add(pc PitchClass) PitchSet {
	return s | 1<<uint(pc.Normalize())
}

func (s PitchSet) Has(pc PitchClass) bool {
	return s&(1<<uint(pc.Normalize())) != 0
}

func (s PitchSet) Len() int {
	return bits.OnesCount16(uint16(s))
}

// Members lists the pitch classes in ascending order.
func (s PitchSet) Members() []PitchClass {
	out := make([]PitchClass, 0, s.Len())
	for pc := PitchClass(0); pc < 12; pc++ {
		if s.Has(pc) {
			out = append(out, pc)
		}
	}
	return out
}

// Quality is the enumerated chord type, independent of any key.
type Quality int

const (
	Major Quality = iota
	Minor
	Diminished
	Augmented
	Sus2
	Sus4
	Major6
	Minor6
	Major7
	Minor7
	Dominant7
	HalfDiminished7
	Diminished7
	MinorMajor7
	Minor7Add11
	qualityCount
)

type qualityInfo struct {
	suffix    string
	intervals []int
	tension   float64
}

var qualities = [qualityCount]qualityInfo{
	Major:           {suffix: "", intervals: []int{0, 4, 7}, tension: 0.10},
	Minor:           {suffix: "m", intervals: []int{0, 3, 7}, tension: 0.15},
	Diminished:      {suffix: "dim", intervals: []int{0, 3, 6}, tension: 0.80},
	Augmented:       {suffix: "aug", intervals: []int{0, 4, 8}, tension: 0.75},
	Sus2:            {suffix: "sus2", intervals: []int{0, 2, 7}, tension: 0.30},
	Sus4:            {suffix: "sus4", intervals: []int{0, 5, 7}, tension: 0.35},
	Major6:          {suffix: "6", intervals: []int{0, 4, 7, 9}, tension: 0.20},
	Minor6:          {suffix: "m6", intervals: []int{0, 3, 7, 9}, tension: 0.40},
	Major7:          {suffix: "maj7", intervals: []int{0, 4, 7, 11}, tension: 0.30},
	Minor7:          {suffix: "m7", intervals: []int{0, 3, 7, 10}, tension: 0.30},
	Dominant7:       {suffix: "7", intervals: []int{0, 4, 7, 10}, tension: 0.70},
	HalfDiminished7: {suffix: "m7b5", intervals: []int{0, 3, 6, 10}, tension: 0.80},
	Diminished7:     {suffix: "dim7", intervals: []int{0, 3, 6, 9}, tension: 0.90},
	MinorMajor7:     {suffix: "mMaj7", intervals: []int{0, 3, 7, 11}, tension: 0.60},
	Minor7Add11:     {suffix: "m7add11", intervals: []int{0, 3, 5, 7, 10}, tension: 0.45},
}

// suffix aliases accepted by ParseSymbol, beyond the canonical suffixes.
var qualityAliases = map[string]Quality{
	"M": Major, "maj": Major,
	"min": Minor, "-": Minor,
	"o": Diminished, "°": Diminished,
	"+": Augmented,
	"sus": Sus4,
	"M6": Major6, "maj6": Major6,
	"min6": Minor6,
	"Maj7": Major7, "M7": Major7, "Δ7": Major7,
	"min7": Minor7, "-7": Minor7,
	"dom7": Dominant7,
	"ø": HalfDiminished7, "ø7": HalfDiminished7, "min7b5": HalfDiminished7,
	"o7": Diminished7, "°7": Diminished7,
	// Some lead sheets spell B-D-F-Ab as "BminMaj7b5".
	"minMaj7b5": Diminished7,
	"minMaj7":   MinorMajor7, "mM7": MinorMajor7,
	"min7add11": Minor7Add11,
}

// Qualities returns every known quality in declaration order.
func Qualities() []Quality {
	out := make([]Quality, 0, qualityCount)
	for q := Quality(0); q < qualityCount; q++ {
		out = append(out, q)
	}
	return out
}

func (q Quality) Valid() bool {
	return q >= 0 && q < qualityCount
}

func (q Quality) String() string {
	if !q.Valid() {
		return fmt.Sprintf("quality(%d)", int(q))
	}
	return qualities[q].suffix
}

// Intervals returns the semitone offsets of the chord tones above the root.
func (q Quality) Intervals() []int {
	return append([]int(nil), qualities[q].intervals...)
}

// Tension is the intrinsic dissonance of the quality in [0,1].
func (q Quality) Tension() float64 {
	return qualities[q].tension
}

// HasPerfectFifth reports whether the quality contains a fifth above the root.
func (q Quality) HasPerfectFifth() bool {
	for _, iv := range qualities[q].intervals {
		if iv == 7 {
			return true
		}
	}
	return false
}

// Symbol is a chord without duration: a root and a quality.
type Symbol struct {
	Root    PitchClass
	Quality Quality
}

func (s Symbol) String() string {
	return s.Root.String() + s.Quality.String()
}

// PitchClasses returns the chord tones.
func (s Symbol) PitchClasses() PitchSet {
	var set PitchSet
	for _, iv := range qualities[s.Quality].intervals {
		set = set.Add(s.Root.Transpose(iv))
	}
	return set
}

// ParseSymbol parses chord names such as "C", "Am", "CMaj7", "G7", "F#m7b5".
func ParseSymbol(name string) (Symbol, error) {
	name = strings.TrimSpace(name)
	root, n, err := ParsePitchClass(name)
	if err != nil {
		return Symbol{}, fmt.Errorf("chord %q: %w", name, err)
	}
	suffix := name[n:]
	for q := Quality(0); q < qualityCount; q++ {
		if qualities[q].suffix == suffix {
			return Symbol{Root: root, Quality: q}, nil
		}
	}
	if q, ok := qualityAliases[suffix]; ok {
		return Symbol{Root: root, Quality: q}, nil
	}
	return Symbol{}, fmt.Errorf("chord %q: unknown quality %q", name, suffix)
}

// Chord is a symbol held for a duration on the melody timeline.
type Chord struct {
	Symbol
	Duration Ticks
}

func (c Chord) String() string {
	return fmt.Sprintf("%s@%d", c.Symbol, c.Duration)
}
