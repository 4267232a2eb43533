// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/domain"
)

// Repository defines the interface for persisting players, the scenario
// catalog and the turn journal. Live session state is never stored.
type Repository interface {
	// GetPlayer retrieves a player by ID. It returns nil, nil when absent.
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)

	// UpsertPlayer creates or updates a player record.
	UpsertPlayer(ctx context.Context, player *domain.Player) error

	// UpdateLastSeen updates the last_seen_at timestamp for a player.
	UpdateLastSeen(ctx context.Context, playerID string, lastSeen time.Time) error

	// ReplaceScenarios swaps the stored catalog for records in one transaction.
	ReplaceScenarios(ctx context.Context, records []domain.ScenarioRecord) error

	// ListScenarios returns the stored catalog ordered by position.
	ListScenarios(ctx context.Context) ([]domain.ScenarioRecord, error)

	// RecordTurn appends a submission to the journal and sets its ID.
	RecordTurn(ctx context.Context, turn *domain.TurnRecord) error

	// ListTurns returns a player's most recent turns, newest first.
	ListTurns(ctx context.Context, playerID string, limit int) ([]domain.TurnRecord, error)

	// CleanupTurns removes journal entries older than retention.
	CleanupTurns(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
