// Package identity provides anonymous per-device player identity.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/domain"
	"github.com/ashureev/dispatch-trainer/internal/store"
)

const (
	AnonCookieName   = "dispatch_anon_id"
	anonCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const (
	playerIDKey contextKey = iota
	nicknameKey
)

var anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)

// PlayerIDFromContext extracts the player ID from the request context.
func PlayerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(playerIDKey).(string); ok {
		return v
	}
	return ""
}

// NicknameFromContext extracts the player's nickname from the request context.
func NicknameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(nicknameKey).(string); ok {
		return v
	}
	return ""
}

// WithPlayer returns a context carrying playerID. Used by tests and internal callers.
func WithPlayer(ctx context.Context, playerID string) context.Context {
	ctx = context.WithValue(ctx, playerIDKey, playerID)
	return context.WithValue(ctx, nicknameKey, deriveNickname(playerID))
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func deriveNickname(playerID string) string {
	if len(playerID) > 13 {
		return "dispatcher-" + playerID[len(playerID)-6:]
	}
	return "dispatcher"
}

func ensurePlayer(ctx context.Context, repo store.Repository, playerID string) error {
	now := time.Now()
	player, err := repo.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if player != nil {
		if err := repo.UpdateLastSeen(ctx, playerID, now); err != nil {
			slog.Warn("failed to update player last seen", "player_id", playerID, "error", err)
		}
		return nil
	}

	return repo.UpsertPlayer(ctx, &domain.Player{
		PlayerID:   playerID,
		Nickname:   deriveNickname(playerID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

// Middleware injects an anonymous per-device player identity.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			playerID, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensurePlayer(r.Context(), repo, playerID); err != nil {
				slog.Error("failed to initialize player", "player_id", playerID, "error", err)
				http.Error(w, `{"error":"failed to initialize player"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPlayer(r.Context(), playerID)))
		})
	}
}
