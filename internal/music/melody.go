package music

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Ticks is the integer time unit shared by melodies and progressions.
type Ticks int64

// TicksPerBeat is the resolution of one quarter note.
const TicksPerBeat Ticks = 480

// ErrMalformedInput is matched by every MalformedInputError.
var ErrMalformedInput = errors.New("malformed input")

// MalformedInputError reports an invalid melody construction.
type MalformedInputError struct {
	Index  int
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed melody: %s", e.Reason)
	}
	return fmt.Sprintf("malformed melody: note %d: %s", e.Index, e.Reason)
}

func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}

// BeatsToTicks converts a beat count into ticks, rounding to the nearest tick.
func BeatsToTicks(beats float64) (Ticks, error) {
	if math.IsNaN(beats) || math.IsInf(beats, 0) {
		return 0, fmt.Errorf("duration %v is not finite", beats)
	}
	t := Ticks(math.Round(beats * float64(TicksPerBeat)))
	if t <= 0 {
		return 0, fmt.Errorf("duration %v beats must be positive", beats)
	}
	return t, nil
}

// Beats converts ticks back to beats.
func (t Ticks) Beats() float64 {
	return float64(t) / float64(TicksPerBeat)
}

// NoteSpec is the raw caller-side description of a melody note.
type NoteSpec struct {
	Pitch string  `json:"pitch" yaml:"pitch"`
	Beats float64 `json:"beats" yaml:"beats"`
}

// Note is one immutable melody note placed on the timeline.
type Note struct {
	Pitch    int
	Onset    Ticks
	Duration Ticks
}

// End returns the tick at which the note stops sounding.
func (n Note) End() Ticks {
	return n.Onset + n.Duration
}

// PitchClass returns the note's pitch class.
func (n Note) PitchClass() PitchClass {
	return PitchClass(n.Pitch).Normalize()
}

// Melody is the read-only input of a harmonization run.
type Melody struct {
	notes    []Note
	duration Ticks
}

// NewMelody validates raw note specs and lays them out back to back.
func NewMelody(specs []NoteSpec) (*Melody, error) {
	if len(specs) == 0 {
		return nil, &MalformedInputError{Index: -1, Reason: "melody has no notes"}
	}
	notes := make([]Note, 0, len(specs))
	var onset Ticks
	for i, spec := range specs {
		pitch, err := ParsePitch(spec.Pitch)
		if err != nil {
			return nil, &MalformedInputError{Index: i, Reason: err.Error()}
		}
		duration, err := BeatsToTicks(spec.Beats)
		if err != nil {
			return nil, &MalformedInputError{Index: i, Reason: err.Error()}
		}
		notes = append(notes, Note{Pitch: pitch, Onset: onset, Duration: duration})
		onset += duration
	}
	return &Melody{notes: notes, duration: onset}, nil
}

// NewMelodyFromNotes builds a melody from MIDI pitches and tick durations.
func NewMelodyFromNotes(pitches []int, durations []Ticks) (*Melody, error) {
	if len(pitches) == 0 {
		return nil, &MalformedInputError{Index: -1, Reason: "melody has no notes"}
	}
	if len(pitches) != len(durations) {
		return nil, &MalformedInputError{Index: -1, Reason: fmt.Sprintf("got %d pitches and %d durations", len(pitches), len(durations))}
	}
	notes := make([]Note, 0, len(pitches))
	var onset Ticks
	for i := range pitches {
		if pitches[i] < 0 || pitches[i] > 127 {
			return nil, &MalformedInputError{Index: i, Reason: fmt.Sprintf("pitch %d out of MIDI range", pitches[i])}
		}
		if durations[i] <= 0 {
			return nil, &MalformedInputError{Index: i, Reason: fmt.Sprintf("duration %d must be positive", durations[i])}
		}
		notes = append(notes, Note{Pitch: pitches[i], Onset: onset, Duration: durations[i]})
		onset += durations[i]
	}
	return &Melody{notes: notes, duration: onset}, nil
}

// Notes returns a copy of the melody notes.
func (m *Melody) Notes() []Note {
	return append([]Note(nil), m.notes...)
}

// Len returns the number of notes.
func (m *Melody) Len() int {
	return len(m.notes)
}

// Duration returns the total melody length in ticks.
func (m *Melody) Duration() Ticks {
	return m.duration
}

// Segment is the melodic material sounding at an instant or inside a window.
// Durations of notes in a window segment are clipped to the window.
type Segment struct {
	Start Ticks
	End   Ticks
	Notes []Note
}

// PitchClasses returns the distinct pitch classes present in the segment.
func (s Segment) PitchClasses() PitchSet {
	var set PitchSet
	for _, n := range s.Notes {
		set = set.Add(n.PitchClass())
	}
	return set
}

// SegmentAt returns the notes sounding at tick t. Times outside the melody
// yield an empty segment.
func (m *Melody) SegmentAt(t Ticks) Segment {
	idx := m.noteIndexAt(t)
	if idx < 0 {
		return Segment{Start: t, End: t}
	}
	n := m.notes[idx]
	return Segment{Start: n.Onset, End: n.End(), Notes: []Note{n}}
}

// Slice returns the notes overlapping [start, end), each clipped to the window.
func (m *Melody) Slice(start, end Ticks) Segment {
	seg := Segment{Start: start, End: end}
	if end <= start {
		return seg
	}
	first := sort.Search(len(m.notes), func(i int) bool {
		return m.notes[i].End() > start
	})
	for i := first; i < len(m.notes) && m.notes[i].Onset < end; i++ {
		n := m.notes[i]
		from := max(n.Onset, start)
		to := min(n.End(), end)
		if to <= from {
			continue
		}
		seg.Notes = append(seg.Notes, Note{Pitch: n.Pitch, Onset: from, Duration: to - from})
	}
	return seg
}

func (m *Melody) noteIndexAt(t Ticks) int {
	if t < 0 || t >= m.duration {
		return -1
	}
	return sort.Search(len(m.notes), func(i int) bool {
		return m.notes[i].End() > t
	})
}

// PhraseEnds returns the ticks at which melodic phrases end. A note lasting
// at least twice the median note duration closes a phrase; the melody end
// always closes the last one.
func (m *Melody) PhraseEnds() []Ticks {
	durations := make([]Ticks, len(m.notes))
	for i, n := range m.notes {
		durations[i] = n.Duration
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	median := durations[len(durations)/2]

	var ends []Ticks
	for _, n := range m.notes {
		if n.Duration >= 2*median && n.End() < m.duration {
			ends = append(ends, n.End())
		}
	}
	return append(ends, m.duration)
}
