// Package domain contains core domain types for the dispatch trainer.
package domain

import (
	"time"
)

// Player is an anonymous device-bound player.
type Player struct {
	PlayerID   string    `json:"player_id"`
	Nickname   string    `json:"nickname"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TurnRecord is one journaled submission.
type TurnRecord struct {
	ID             int64     `json:"id"`
	PlayerID       string    `json:"player_id"`
	SessionID      string    `json:"session_id"`
	Mode           Mode      `json:"mode"`
	ScenarioID     string    `json:"scenario_id"`
	Choice         Choice    `json:"choice"`
	ExpectedChoice Choice    `json:"expected_choice"`
	IsCorrect      bool      `json:"is_correct"`
	LivesRemaining int       `json:"lives_remaining"`
	Streak         int       `json:"streak"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewTurnRecord builds the journal entry for a graded turn.
func NewTurnRecord(playerID, sessionID string, r TurnResult) TurnRecord {
	rec := TurnRecord{
		PlayerID:       playerID,
		SessionID:      sessionID,
		Mode:           r.Mode,
		ScenarioID:     r.ScenarioID,
		Choice:         r.Choice,
		ExpectedChoice: r.ExpectedChoice,
		IsCorrect:      r.IsCorrect,
		Streak:         r.Streak,
		CreatedAt:      time.Now(),
	}
	if r.LivesRemaining != nil {
		rec.LivesRemaining = *r.LivesRemaining
	}
	return rec
}
