package music

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quarterMelody(t *testing.T, pitches ...string) *Melody {
	t.Helper()
	specs := make([]NoteSpec, len(pitches))
	for i, p := range pitches {
		specs[i] = NoteSpec{Pitch: p, Beats: 1}
	}
	m, err := NewMelody(specs)
	require.NoError(t, err)
	return m
}

func TestParsePitch(t *testing.T) {
	cases := map[string]int{
		"C4":  60,
		"c4":  60,
		"A4":  69,
		"C#5": 73,
		"Bb3": 58,
		"Cb4": 59,
		"B#3": 60,
		"G5":  79,
	}
	for in, want := range cases {
		got, err := ParsePitch(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "H4", "C", "Cx", "G99"} {
		_, err := ParsePitch(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "C4", PitchName(60))
}

func TestPitchClassDistances(t *testing.T) {
	c := PitchClass(0)
	assert.Equal(t, 0, c.Distance(0))
	assert.Equal(t, 5, c.Distance(7))
	assert.Equal(t, 1, c.FifthsDistance(7))
	assert.Equal(t, 1, c.FifthsDistance(5))
	assert.Equal(t, 2, c.FifthsDistance(2))
	assert.Equal(t, 6, c.FifthsDistance(6))
	assert.Equal(t, PitchClass(11), c.Transpose(-1))
}

func TestParseSymbol(t *testing.T) {
	cases := []struct {
		in   string
		want Symbol
	}{
		{"C", Symbol{Root: 0, Quality: Major}},
		{"Am", Symbol{Root: 9, Quality: Minor}},
		{"CMaj7", Symbol{Root: 0, Quality: Major7}},
		{"G7", Symbol{Root: 7, Quality: Dominant7}},
		{"Fsus2", Symbol{Root: 5, Quality: Sus2}},
		{"Fm6", Symbol{Root: 5, Quality: Minor6}},
		{"Am7add11", Symbol{Root: 9, Quality: Minor7Add11}},
		{"BminMaj7b5", Symbol{Root: 11, Quality: Diminished7}},
		{"F#m7b5", Symbol{Root: 6, Quality: HalfDiminished7}},
		{"Ebmaj7", Symbol{Root: 3, Quality: Major7}},
	}
	for _, tc := range cases {
		got, err := ParseSymbol(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseSymbol("Cwhat")
	assert.Error(t, err)

	sym, err := ParseSymbol("G7")
	require.NoError(t, err)
	tones := sym.PitchClasses()
	assert.Equal(t, 4, tones.Len())
	assert.Equal(t, []PitchClass{2, 5, 7, 11}, tones.Members())
	assert.Equal(t, "G7", sym.String())
}

func TestNewMelodyRejectsMalformedInput(t *testing.T) {
	_, err := NewMelody(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedInput))

	_, err = NewMelody([]NoteSpec{{Pitch: "C4", Beats: 1}, {Pitch: "D4", Beats: 0}})
	require.Error(t, err)
	var malformed *MalformedInputError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 1, malformed.Index)

	_, err = NewMelody([]NoteSpec{{Pitch: "C4", Beats: -2}})
	assert.True(t, errors.Is(err, ErrMalformedInput))

	_, err = NewMelodyFromNotes([]int{60}, []Ticks{0})
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestMelodySegments(t *testing.T) {
	m := quarterMelody(t, "C4", "E4", "G4", "C5")
	assert.Equal(t, 4*TicksPerBeat, m.Duration())

	seg := m.SegmentAt(TicksPerBeat + 10)
	require.Len(t, seg.Notes, 1)
	assert.Equal(t, 64, seg.Notes[0].Pitch)
	assert.Empty(t, m.SegmentAt(m.Duration()).Notes)

	window := m.Slice(TicksPerBeat/2, 2*TicksPerBeat)
	require.Len(t, window.Notes, 2)
	assert.Equal(t, TicksPerBeat/2, window.Notes[0].Duration)
	assert.Equal(t, TicksPerBeat, window.Notes[1].Duration)
	assert.True(t, window.PitchClasses().Has(0))
	assert.True(t, window.PitchClasses().Has(4))
}

func TestPhraseEnds(t *testing.T) {
	m, err := NewMelody([]NoteSpec{
		{Pitch: "C5", Beats: 1}, {Pitch: "C5", Beats: 1}, {Pitch: "G5", Beats: 2},
		{Pitch: "F5", Beats: 1}, {Pitch: "E5", Beats: 1}, {Pitch: "C5", Beats: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []Ticks{4 * TicksPerBeat, 8 * TicksPerBeat}, m.PhraseEnds())
}

func TestTimelineTilesMelody(t *testing.T) {
	m, err := NewMelody([]NoteSpec{{Pitch: "C4", Beats: 3}, {Pitch: "D4", Beats: 3}})
	require.NoError(t, err)

	tl := NewTimeline(m, 4*TicksPerBeat)
	require.Equal(t, 2, tl.Len())
	slots := tl.Slots()
	assert.Equal(t, 4*TicksPerBeat, slots[0].Len())
	assert.Equal(t, 2*TicksPerBeat, slots[1].Len())

	p, err := tl.Progression([]Symbol{{Root: 0}, {Root: 7, Quality: Dominant7}})
	require.NoError(t, err)
	require.NoError(t, tl.Check(p))
	assert.Equal(t, []Ticks{4 * TicksPerBeat}, p.Boundaries())

	perNote := NewTimeline(m, 0)
	assert.Equal(t, 2, perNote.Len())

	_, err = tl.Progression([]Symbol{{Root: 0}})
	assert.ErrorIs(t, err, ErrMisaligned)
}

func TestCheckAlignment(t *testing.T) {
	m := quarterMelody(t, "C4", "E4")
	ok := Progression{{Symbol: Symbol{Root: 0}, Duration: 2 * TicksPerBeat}}
	require.NoError(t, CheckAlignment(m, ok))

	assert.ErrorIs(t, CheckAlignment(m, nil), ErrMisaligned)
	short := Progression{{Symbol: Symbol{Root: 0}, Duration: TicksPerBeat}}
	assert.ErrorIs(t, CheckAlignment(m, short), ErrMisaligned)
	zero := Progression{
		{Symbol: Symbol{Root: 0}, Duration: 2 * TicksPerBeat},
		{Symbol: Symbol{Root: 7}, Duration: 0},
	}
	assert.ErrorIs(t, CheckAlignment(m, zero), ErrMisaligned)
}

func TestProgressionKeyIsContentBased(t *testing.T) {
	a := Progression{{Symbol: Symbol{Root: 0, Quality: Major7}, Duration: 480}}
	b := a.Clone()
	assert.Equal(t, a.Key(), b.Key())
	b[0].Root = 7
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, "Cmaj7", a.String())
}

func TestParseKeyAndEstimate(t *testing.T) {
	k, err := ParseKey("Am")
	require.NoError(t, err)
	assert.Equal(t, Key{Tonic: 9, Mode: ModeMinor}, k)
	k, err = ParseKey("Eb major")
	require.NoError(t, err)
	assert.Equal(t, Key{Tonic: 3, Mode: ModeMajor}, k)
	_, err = ParseKey("C lydian")
	assert.Error(t, err)

	scale := quarterMelody(t, "C4", "D4", "E4", "F4", "G4", "A4", "B4", "C5", "G4", "E4", "C4")
	assert.Equal(t, Key{Tonic: 0, Mode: ModeMajor}, EstimateKey(scale))
}
