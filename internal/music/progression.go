package music

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMisaligned is returned when a progression does not tile the melody.
var ErrMisaligned = errors.New("progression misaligned with melody")

// Span is a half-open interval on the timeline.
type Span struct {
	Start Ticks
	End   Ticks
}

func (s Span) Len() Ticks {
	return s.End - s.Start
}

// Closes reports whether t lies in (Start, End], i.e. whether a boundary at t
// ends this span.
func (s Span) Closes(t Ticks) bool {
	return t > s.Start && t <= s.End
}

// Progression is an ordered sequence of chords.
type Progression []Chord

// Clone returns an independent copy.
func (p Progression) Clone() Progression {
	return append(Progression(nil), p...)
}

// Duration returns the summed chord durations.
func (p Progression) Duration() Ticks {
	var total Ticks
	for _, c := range p {
		total += c.Duration
	}
	return total
}

// Spans returns the timeline interval covered by each chord.
func (p Progression) Spans() []Span {
	spans := make([]Span, len(p))
	var at Ticks
	for i, c := range p {
		spans[i] = Span{Start: at, End: at + c.Duration}
		at += c.Duration
	}
	return spans
}

// Boundaries returns the interior chord boundaries, excluding 0 and the end.
func (p Progression) Boundaries() []Ticks {
	if len(p) < 2 {
		return nil
	}
	out := make([]Ticks, 0, len(p)-1)
	var at Ticks
	for _, c := range p[:len(p)-1] {
		at += c.Duration
		out = append(out, at)
	}
	return out
}

// Symbols returns the chord symbols without durations.
func (p Progression) Symbols() []Symbol {
	out := make([]Symbol, len(p))
	for i, c := range p {
		out[i] = c.Symbol
	}
	return out
}

// Key returns a canonical content key, used for memoization and equality.
func (p Progression) Key() string {
	var b strings.Builder
	for i, c := range p {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(c.String())
	}
	return b.String()
}

func (p Progression) String() string {
	names := make([]string, len(p))
	for i, c := range p {
		names[i] = c.Symbol.String()
	}
	return strings.Join(names, " ")
}

// CheckAlignment verifies that p is non-empty, that every chord has a
// positive duration and a valid quality, and that the durations sum to the
// melody duration exactly.
func CheckAlignment(m *Melody, p Progression) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: progression has no chords", ErrMisaligned)
	}
	for i, c := range p {
		if c.Duration <= 0 {
			return fmt.Errorf("%w: chord %d has non-positive duration %d", ErrMisaligned, i, c.Duration)
		}
		if !c.Quality.Valid() {
			return fmt.Errorf("%w: chord %d has invalid quality %d", ErrMisaligned, i, int(c.Quality))
		}
	}
	if got := p.Duration(); got != m.Duration() {
		return fmt.Errorf("%w: chords last %d ticks, melody lasts %d", ErrMisaligned, got, m.Duration())
	}
	return nil
}

// Timeline is the set of chord slots that tile a melody.
type Timeline struct {
	melody *Melody
	slots  []Span
}

// NewTimeline cuts the melody into slots of the given length. The final slot
// is shortened so the slots tile the melody exactly. A non-positive slot
// length places one slot under each melody note.
func NewTimeline(m *Melody, slot Ticks) *Timeline {
	var slots []Span
	if slot <= 0 {
		for _, n := range m.notes {
			slots = append(slots, Span{Start: n.Onset, End: n.End()})
		}
	} else {
		for at := Ticks(0); at < m.duration; at += slot {
			slots = append(slots, Span{Start: at, End: min(at+slot, m.duration)})
		}
	}
	return &Timeline{melody: m, slots: slots}
}

func (t *Timeline) Melody() *Melody {
	return t.melody
}

// Slots returns a copy of the slot spans.
func (t *Timeline) Slots() []Span {
	return append([]Span(nil), t.slots...)
}

func (t *Timeline) Len() int {
	return len(t.slots)
}

// Progression lays the symbols onto the slots. len(symbols) must equal Len().
func (t *Timeline) Progression(symbols []Symbol) (Progression, error) {
	if len(symbols) != len(t.slots) {
		return nil, fmt.Errorf("%w: %d symbols for %d slots", ErrMisaligned, len(symbols), len(t.slots))
	}
	p := make(Progression, len(symbols))
	for i, s := range symbols {
		p[i] = Chord{Symbol: s, Duration: t.slots[i].Len()}
	}
	return p, nil
}

// Check verifies the alignment invariant against the timeline's melody.
func (t *Timeline) Check(p Progression) error {
	return CheckAlignment(t.melody, p)
}
