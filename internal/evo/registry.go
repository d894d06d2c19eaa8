package evo

import (
	"errors"
	"fmt"
	"sort"

	"harmonia/internal/config"
)

var ErrSelectorNotFound = errors.New("selector not found")

// SelectorFactory builds a selector from the run configuration.
type SelectorFactory func(cfg config.RunConfig) Selector

var selectorRegistry = map[string]SelectorFactory{
	config.SelectionRoulette: func(config.RunConfig) Selector { return RouletteSelector{} },
	config.SelectionTournament: func(cfg config.RunConfig) Selector {
		return TournamentSelector{TournamentSize: cfg.TournamentSize}
	},
	config.SelectionElite: func(cfg config.RunConfig) Selector { return EliteSelector{Count: cfg.EliteCount} },
}

// ResolveSelector builds the selector named by cfg.Selection.
func ResolveSelector(cfg config.RunConfig) (Selector, error) {
	factory, ok := selectorRegistry[cfg.Selection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSelectorNotFound, cfg.Selection)
	}
	return factory(cfg), nil
}

func ListSelectors() []string {
	names := make([]string, 0, len(selectorRegistry))
	for name := range selectorRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
