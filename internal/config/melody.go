package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"harmonia/internal/music"
)

// MelodyFile is the on-disk melody format. Each note is either a mapping
// {pitch: C5, beats: 1} or the compact scalar "C5:1". A bare pitch lasts
// one beat.
type MelodyFile struct {
	Name  string      `yaml:"name"`
	Notes []noteEntry `yaml:"notes"`
}

type noteEntry music.NoteSpec

func (n *noteEntry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		pitch, beats, found := strings.Cut(strings.TrimSpace(node.Value), ":")
		n.Pitch = strings.TrimSpace(pitch)
		n.Beats = 1
		if found {
			v, err := strconv.ParseFloat(strings.TrimSpace(beats), 64)
			if err != nil {
				return fmt.Errorf("line %d: note %q: %w", node.Line, node.Value, err)
			}
			n.Beats = v
		}
		return nil
	case yaml.MappingNode:
		var spec music.NoteSpec
		if err := node.Decode(&spec); err != nil {
			return err
		}
		*n = noteEntry(spec)
		return nil
	default:
		return fmt.Errorf("line %d: note must be a scalar or mapping", node.Line)
	}
}

// Specs returns the notes as melody specs.
func (f MelodyFile) Specs() []music.NoteSpec {
	out := make([]music.NoteSpec, len(f.Notes))
	for i, n := range f.Notes {
		out[i] = music.NoteSpec(n)
	}
	return out
}

// LoadMelody reads a YAML melody file.
func LoadMelody(path string) (MelodyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MelodyFile{}, err
	}
	return ParseMelody(data)
}

// ParseMelody decodes YAML melody bytes.
func ParseMelody(data []byte) (MelodyFile, error) {
	var f MelodyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return MelodyFile{}, fmt.Errorf("decode melody: %w", err)
	}
	return f, nil
}

// Twinkle is the built-in demo melody, "Twinkle Twinkle Little Star" in C.
func Twinkle() MelodyFile {
	line := func(pitches ...string) []noteEntry {
		out := make([]noteEntry, len(pitches))
		for i, p := range pitches {
			out[i] = noteEntry{Pitch: p, Beats: 1}
		}
		out[len(out)-1].Beats = 2
		return out
	}
	var notes []noteEntry
	notes = append(notes, line("C5", "C5", "G5", "G5", "A5", "A5", "G5")...)
	notes = append(notes, line("F5", "F5", "E5", "E5", "D5", "D5", "C5")...)
	notes = append(notes, line("G5", "G5", "F5", "F5", "E5", "E5", "D5")...)
	notes = append(notes, line("G5", "G5", "F5", "F5", "E5", "E5", "D5")...)
	notes = append(notes, line("C5", "C5", "G5", "G5", "A5", "A5", "G5")...)
	notes = append(notes, line("F5", "F5", "E5", "E5", "D5", "D5", "C5")...)
	return MelodyFile{Name: "twinkle", Notes: notes}
}
