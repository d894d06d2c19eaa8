package music

import (
	"fmt"
	"strconv"
	"strings"
)

// PitchClass is a pitch modulo the octave: 0=C, 1=C#, ..., 11=B.
type PitchClass int

var pitchClassNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var naturalPitchClasses = map[byte]PitchClass{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// Normalize folds any integer into [0, 12).
func (pc PitchClass) Normalize() PitchClass {
	v := int(pc) % 12
	if v < 0 {
		v += 12
	}
	return PitchClass(v)
}

func (pc PitchClass) String() string {
	return pitchClassNames[pc.Normalize()]
}

// Transpose moves the pitch class by the given number of semitones.
func (pc PitchClass) Transpose(semitones int) PitchClass {
	return (pc + PitchClass(semitones)).Normalize()
}

// Interval returns the ascending interval in semitones from pc to other.
func (pc PitchClass) Interval(other PitchClass) int {
	return int((other - pc).Normalize())
}

// Distance returns the shortest semitone distance between two pitch classes (0..6).
func (pc PitchClass) Distance(other PitchClass) int {
	d := pc.Interval(other)
	if d > 6 {
		d = 12 - d
	}
	return d
}

// FifthsDistance returns the number of steps separating two pitch classes
// on the circle of fifths (0..6).
func (pc PitchClass) FifthsDistance(other PitchClass) int {
	// 7 is its own inverse mod 12, so multiplying by 7 maps semitones onto fifths.
	steps := (pc.Interval(other) * 7) % 12
	if steps > 6 {
		steps = 12 - steps
	}
	return steps
}

// ParsePitchClass parses a note letter with optional accidentals ("C", "F#", "Bb", "Ebb").
// It returns the pitch class and the number of bytes consumed.
func ParsePitchClass(s string) (PitchClass, int, error) {
	if s == "" {
		return 0, 0, fmt.Errorf("empty pitch name")
	}
	letter := s[0]
	if letter >= 'a' && letter <= 'g' {
		letter -= 'a' - 'A'
	}
	base, ok := naturalPitchClasses[letter]
	if !ok {
		return 0, 0, fmt.Errorf("invalid note letter %q", s[:1])
	}
	pc := int(base)
	i := 1
	for ; i < len(s); i++ {
		switch s[i] {
		case '#':
			pc++
			continue
		case 'b':
			pc--
			continue
		}
		break
	}
	return PitchClass(pc).Normalize(), i, nil
}

// ParsePitch parses scientific pitch notation ("C4", "F#5", "Bb3") into a
// MIDI note number, with C4 = 60.
func ParsePitch(s string) (int, error) {
	s = strings.TrimSpace(s)
	pc, n, err := ParsePitchClass(s)
	if err != nil {
		return 0, err
	}
	rest := s[n:]
	if rest == "" {
		return 0, fmt.Errorf("pitch %q has no octave", s)
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("pitch %q has invalid octave: %w", s, err)
	}
	// Cb and B# cross the octave boundary; derive from the letter position.
	letterPC := int(naturalPitchClasses[upper(s[0])])
	offset := int(pc) - letterPC
	if offset > 6 {
		offset -= 12
	} else if offset < -6 {
		offset += 12
	}
	midi := (octave+1)*12 + letterPC + offset
	if midi < 0 || midi > 127 {
		return 0, fmt.Errorf("pitch %q out of MIDI range", s)
	}
	return midi, nil
}

// PitchName renders a MIDI note number in scientific pitch notation.
func PitchName(midi int) string {
	return fmt.Sprintf("%s%d", PitchClass(midi).Normalize(), midi/12-1)
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}
