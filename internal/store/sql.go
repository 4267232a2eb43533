package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/domain"
	"github.com/ashureev/dispatch-trainer/internal/shared"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver maps common aliases to a Driver.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "pg", "pgsql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", s)
	}
}

// SQLStore implements Repository on top of database/sql.
type SQLStore struct {
	db     *sql.DB
	driver Driver
}

// Open opens the database for driver and ensures the schema exists.
// For SQLite dsn is a file path; for Postgres it is a connection URL.
func Open(ctx context.Context, driver Driver, dsn string) (*SQLStore, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			return nil, fmt.Errorf("sqlite database path is required")
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + dsn + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS players (
	player_id TEXT PRIMARY KEY,
	nickname TEXT NOT NULL DEFAULT '',
	last_seen_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scenarios (
	scenario_id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	body TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	player_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	scenario_id TEXT NOT NULL,
	choice TEXT NOT NULL,
	expected_choice TEXT NOT NULL,
	is_correct INTEGER NOT NULL,
	lives_remaining INTEGER NOT NULL,
	streak INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_player ON turns(player_id, id);
CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS players (
	player_id TEXT PRIMARY KEY,
	nickname TEXT NOT NULL DEFAULT '',
	last_seen_at BIGINT NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS scenarios (
	scenario_id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	body TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	id BIGSERIAL PRIMARY KEY,
	player_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	scenario_id TEXT NOT NULL,
	choice TEXT NOT NULL,
	expected_choice TEXT NOT NULL,
	is_correct BOOLEAN NOT NULL,
	lives_remaining INTEGER NOT NULL,
	streak INTEGER NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_player ON turns(player_id, id);
CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);
`

func (s *SQLStore) initSchema(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// withRetry runs op, retrying with exponential backoff on lock contention.
func (s *SQLStore) withRetry(ctx context.Context, name string, op func() error) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil || !shared.IsConflictError(err) {
			return err
		}
		if i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("database write conflicted, retrying", "op", name, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxRetries, err)
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetPlayer retrieves a player by ID.
func (s *SQLStore) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	query := s.rebind(`
		SELECT player_id, nickname, last_seen_at, created_at, updated_at
		FROM players WHERE player_id = ?`)

	var p domain.Player
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, playerID).Scan(
		&p.PlayerID, &p.Nickname, &lastSeen, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan player row: %w", err)
	}

	p.LastSeenAt = time.Unix(lastSeen, 0)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// UpsertPlayer creates or updates a player record.
func (s *SQLStore) UpsertPlayer(ctx context.Context, p *domain.Player) error {
	query := s.rebind(`
	INSERT INTO players (player_id, nickname, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(player_id) DO UPDATE SET
		nickname = excluded.nickname,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`)

	return s.withRetry(ctx, "upsert player", func() error {
		_, err := s.db.ExecContext(ctx, query,
			p.PlayerID, p.Nickname, p.LastSeenAt.Unix(), p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert player: %w", err)
		}
		return nil
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a player.
func (s *SQLStore) UpdateLastSeen(ctx context.Context, playerID string, lastSeen time.Time) error {
	query := s.rebind(`UPDATE players SET last_seen_at = ?, updated_at = ? WHERE player_id = ?`)
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), playerID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "player_id", playerID)
	}
	return nil
}

// ReplaceScenarios swaps the stored catalog for records.
func (s *SQLStore) ReplaceScenarios(ctx context.Context, records []domain.ScenarioRecord) error {
	insert := s.rebind(`INSERT INTO scenarios (scenario_id, position, body) VALUES (?, ?, ?)`)

	return s.withRetry(ctx, "replace scenarios", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM scenarios`); err != nil {
			return fmt.Errorf("clear scenarios: %w", err)
		}
		for _, r := range records {
			if _, err := tx.ExecContext(ctx, insert, r.ID, r.Position, string(r.Body)); err != nil {
				return fmt.Errorf("insert scenario %s: %w", r.ID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit scenarios: %w", err)
		}
		return nil
	})
}

// ListScenarios returns the stored catalog ordered by position.
func (s *SQLStore) ListScenarios(ctx context.Context) ([]domain.ScenarioRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT scenario_id, position, body FROM scenarios ORDER BY position, scenario_id`)
	if err != nil {
		return nil, fmt.Errorf("query scenarios: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close scenario rows", "error", closeErr)
		}
	}()

	var records []domain.ScenarioRecord
	for rows.Next() {
		var r domain.ScenarioRecord
		var body string
		if err := rows.Scan(&r.ID, &r.Position, &body); err != nil {
			return nil, fmt.Errorf("scan scenario row: %w", err)
		}
		r.Body = []byte(body)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenarios: %w", err)
	}
	return records, nil
}

// RecordTurn appends a submission to the journal.
func (s *SQLStore) RecordTurn(ctx context.Context, t *domain.TurnRecord) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	query := s.rebind(`
	INSERT INTO turns (
		player_id, session_id, mode, scenario_id, choice, expected_choice,
		is_correct, lives_remaining, streak, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`)

	return s.withRetry(ctx, "record turn", func() error {
		err := s.db.QueryRowContext(ctx, query,
			t.PlayerID, t.SessionID, string(t.Mode), t.ScenarioID,
			string(t.Choice), string(t.ExpectedChoice),
			t.IsCorrect, t.LivesRemaining, t.Streak, t.CreatedAt.Unix(),
		).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
		return nil
	})
}

// ListTurns returns a player's most recent turns, newest first.
func (s *SQLStore) ListTurns(ctx context.Context, playerID string, limit int) ([]domain.TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.rebind(`
		SELECT id, player_id, session_id, mode, scenario_id, choice, expected_choice,
		       is_correct, lives_remaining, streak, created_at
		FROM turns WHERE player_id = ?
		ORDER BY id DESC LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close turn rows", "error", closeErr)
		}
	}()

	var turns []domain.TurnRecord
	for rows.Next() {
		var t domain.TurnRecord
		var mode, choice, expected string
		var createdAt int64
		if err := rows.Scan(
			&t.ID, &t.PlayerID, &t.SessionID, &mode, &t.ScenarioID, &choice, &expected,
			&t.IsCorrect, &t.LivesRemaining, &t.Streak, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Mode = domain.Mode(mode)
		t.Choice = domain.Choice(choice)
		t.ExpectedChoice = domain.Choice(expected)
		t.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// CleanupTurns removes journal entries older than retention.
func (s *SQLStore) CleanupTurns(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).Unix()
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM turns WHERE created_at < ?`), threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup turns: %w", err)
	}
	return result.RowsAffected()
}
