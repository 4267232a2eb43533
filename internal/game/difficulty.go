package game

import "github.com/ashureev/dispatch-trainer/internal/domain"

// Streak thresholds for escalating difficulty.
const (
	mediumStreak = 2
	hardStreak   = 5
)

// fallbackOrder lists the tiers tried, in order, for each target tier.
// Medium escalates before it eases off.
var fallbackOrder = map[int][]int{
	domain.TierHard:   {domain.TierHard, domain.TierMedium, domain.TierEasy},
	domain.TierMedium: {domain.TierMedium, domain.TierHard, domain.TierEasy},
	domain.TierEasy:   {domain.TierEasy},
}

// TargetTier maps a streak of correct answers to a difficulty tier.
func TargetTier(streak int) int {
	switch {
	case streak >= hardStreak:
		return domain.TierHard
	case streak >= mediumStreak:
		return domain.TierMedium
	default:
		return domain.TierEasy
	}
}

// SelectWithFallback filters candidates to the tier, falling back to
// neighbouring tiers and finally to the unfiltered list.
func SelectWithFallback(candidates []domain.Scenario, tier int) []domain.Scenario {
	for _, t := range fallbackOrder[tier] {
		if picked := FilterByDifficulty(candidates, t); len(picked) > 0 {
			return picked
		}
	}
	return candidates
}
