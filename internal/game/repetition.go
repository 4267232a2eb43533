package game

import "github.com/ashureev/dispatch-trainer/internal/domain"

// repeatWindow is how many recent expected choices are forbidden.
const repeatWindow = 2

// RepetitionGuard drops candidates whose answer would repeat recent ones.
type RepetitionGuard struct {
	rules *RuleEvaluator
}

// NewRepetitionGuard creates a guard that predicts answers with rules.
func NewRepetitionGuard(rules *RuleEvaluator) *RepetitionGuard {
	return &RepetitionGuard{rules: rules}
}

// Narrow removes candidates whose predicted choice is among the last two
// expected choices. It never returns an empty list for non-empty input.
func (g *RepetitionGuard) Narrow(candidates []domain.Scenario, recentExpected []domain.Choice) []domain.Scenario {
	if len(recentExpected) < repeatWindow {
		return candidates
	}
	forbidden := make(map[domain.Choice]struct{}, repeatWindow)
	for _, c := range recentExpected[len(recentExpected)-repeatWindow:] {
		forbidden[c] = struct{}{}
	}

	var out []domain.Scenario
	for _, s := range candidates {
		if _, ok := forbidden[g.rules.Predict(s)]; !ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}
