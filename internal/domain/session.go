package domain

import "fmt"

// Mode is the game mode of a session.
type Mode string

const (
	ModeMenu     Mode = "menu"
	ModeEndless  Mode = "endless"
	ModeSurvival Mode = "survival"
)

// ParseMode validates a playable mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeEndless, ModeSurvival:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// ExpectedWindow is how many expected choices a session remembers.
const ExpectedWindow = 5

// SessionState holds the mutable state of one play session.
type SessionState struct {
	Mode                Mode     `json:"mode"`
	Lives               int      `json:"lives"`
	MaxLives            int      `json:"max_lives"`
	IsActive            bool     `json:"is_active"`
	IsProcessing        bool     `json:"is_processing"`
	PerformanceStreak   int      `json:"performance_streak"`
	ScenarioHistory     []string `json:"scenario_history"`
	LastExpectedChoices []Choice `json:"last_expected_choices"`
	CurrentScenarioID   string   `json:"current_scenario_id,omitempty"`
}

// NewSessionState returns an idle session sitting in the menu.
func NewSessionState(maxLives int) SessionState {
	return SessionState{Mode: ModeMenu, Lives: maxLives, MaxLives: maxLives}
}

// RecordScenario marks a scenario as shown and remembers its expected choice.
func (s *SessionState) RecordScenario(id string, expected Choice) {
	s.ScenarioHistory = append(s.ScenarioHistory, id)
	s.LastExpectedChoices = append(s.LastExpectedChoices, expected)
	if n := len(s.LastExpectedChoices); n > ExpectedWindow {
		s.LastExpectedChoices = append([]Choice(nil), s.LastExpectedChoices[n-ExpectedWindow:]...)
	}
	s.CurrentScenarioID = id
}

// RecentExpected returns the last n expected choices.
func (s *SessionState) RecentExpected(n int) []Choice {
	if n >= len(s.LastExpectedChoices) {
		return s.LastExpectedChoices
	}
	return s.LastExpectedChoices[len(s.LastExpectedChoices)-n:]
}

// ResetCycle clears everything tied to the current pass over the catalog.
func (s *SessionState) ResetCycle() {
	s.ScenarioHistory = nil
	s.LastExpectedChoices = nil
	s.PerformanceStreak = 0
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s SessionState) Clone() SessionState {
	s.ScenarioHistory = append([]string(nil), s.ScenarioHistory...)
	s.LastExpectedChoices = append([]Choice(nil), s.LastExpectedChoices...)
	return s
}

// TurnResult is what the presentation layer receives after a submission.
type TurnResult struct {
	ScenarioID     string `json:"scenario_id"`
	Mode           Mode   `json:"mode"`
	Choice         Choice `json:"choice"`
	ChoiceLabel    string `json:"choice_label"`
	IsCorrect      bool   `json:"is_correct"`
	FeedbackText   string `json:"feedback"`
	ExpectedChoice Choice `json:"expected_choice"`
	LivesRemaining *int   `json:"lives_remaining,omitempty"`
	IsGameOver     bool   `json:"is_game_over"`
	Streak         int    `json:"streak"`
}
