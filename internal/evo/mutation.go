package evo

import (
	"fmt"

	"harmonia/internal/music"
)

// MutationKind is the part of a chord symbol a mutation replaces.
type MutationKind int

const (
	MutateRoot MutationKind = iota
	MutateQuality
	MutateBoth
)

func (k MutationKind) String() string {
	switch k {
	case MutateRoot:
		return "root"
	case MutateQuality:
		return "quality"
	default:
		return "both"
	}
}

// Mutator replaces each chord with probability Rate by a different
// vocabulary symbol. The kind of change (root, quality, or both) is drawn
// uniformly; when the vocabulary holds no symbol differing in exactly that
// way any different symbol is used. Durations never change.
type Mutator struct {
	Rate float64
}

func (Mutator) Name() string {
	return "mutation"
}

func (m Mutator) Apply(rt *Runtime, p music.Progression) (music.Progression, error) {
	var lastErr error
	for attempt := 0; attempt < MaxRepairAttempts; attempt++ {
		out := p.Clone()
		for i := range out {
			if rt.RNG.Float64() >= m.Rate {
				continue
			}
			kind := MutationKind(rt.RNG.Intn(3))
			out[i].Symbol = replacement(rt, out[i].Symbol, kind)
		}
		if err := verify(rt, m.Name(), out); err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", MaxRepairAttempts, lastErr)
}

func replacement(rt *Runtime, current music.Symbol, kind MutationKind) music.Symbol {
	var exact, other []music.Symbol
	for _, s := range rt.Vocabulary {
		if s == current {
			continue
		}
		other = append(other, s)
		sameRoot := s.Root == current.Root
		sameQuality := s.Quality == current.Quality
		switch {
		case kind == MutateRoot && !sameRoot && sameQuality,
			kind == MutateQuality && sameRoot && !sameQuality,
			kind == MutateBoth && !sameRoot && !sameQuality:
			exact = append(exact, s)
		}
	}
	if len(exact) > 0 {
		return exact[rt.RNG.Intn(len(exact))]
	}
	if len(other) > 0 {
		return other[rt.RNG.Intn(len(other))]
	}
	return current
}
