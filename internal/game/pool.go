package game

import (
	"errors"
	"fmt"

	"github.com/ashureev/dispatch-trainer/internal/domain"
)

var (
	// ErrCatalogEmpty is returned when no scenarios are available to play.
	ErrCatalogEmpty = errors.New("scenario catalog is empty")
	// ErrDuplicateScenario is returned when two scenarios share an id.
	ErrDuplicateScenario = errors.New("duplicate scenario id")
)

// ScenarioPool is the read-only catalog a session draws from.
type ScenarioPool struct {
	scenarios []domain.Scenario
	byID      map[string]int
}

// NewScenarioPool builds a pool from catalog entries, keeping their order.
func NewScenarioPool(scenarios []domain.Scenario) (*ScenarioPool, error) {
	if len(scenarios) == 0 {
		return nil, ErrCatalogEmpty
	}
	p := &ScenarioPool{
		scenarios: make([]domain.Scenario, len(scenarios)),
		byID:      make(map[string]int, len(scenarios)),
	}
	copy(p.scenarios, scenarios)
	for i, s := range p.scenarios {
		if _, dup := p.byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateScenario, s.ID)
		}
		p.byID[s.ID] = i
	}
	return p, nil
}

// Len returns the catalog size.
func (p *ScenarioPool) Len() int {
	return len(p.scenarios)
}

// All returns every scenario in catalog order.
func (p *ScenarioPool) All() []domain.Scenario {
	out := make([]domain.Scenario, len(p.scenarios))
	copy(out, p.scenarios)
	return out
}

// Get looks up a scenario by id.
func (p *ScenarioPool) Get(id string) (domain.Scenario, bool) {
	i, ok := p.byID[id]
	if !ok {
		return domain.Scenario{}, false
	}
	return p.scenarios[i], true
}

// AvailableExcluding returns scenarios whose id is not in history.
// An empty result means the pool is exhausted; resetting is up to the caller.
func (p *ScenarioPool) AvailableExcluding(history []string) []domain.Scenario {
	seen := make(map[string]struct{}, len(history))
	for _, id := range history {
		seen[id] = struct{}{}
	}
	out := make([]domain.Scenario, 0, len(p.scenarios))
	for _, s := range p.scenarios {
		if _, ok := seen[s.ID]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// FilterByDifficulty keeps scenarios of the given tier. A zero difficulty
// counts as tier 1.
func FilterByDifficulty(list []domain.Scenario, tier int) []domain.Scenario {
	var out []domain.Scenario
	for _, s := range list {
		if effectiveTier(s) == tier {
			out = append(out, s)
		}
	}
	return out
}

func effectiveTier(s domain.Scenario) int {
	if s.Difficulty <= 0 {
		return domain.TierEasy
	}
	return s.Difficulty
}
