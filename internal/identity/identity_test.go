package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/domain"
)

type fakeRepo struct {
	mu       sync.Mutex
	players  map[string]*domain.Player
	touched  map[string]int
	getCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{players: map[string]*domain.Player{}, touched: map[string]int{}}
}

func (f *fakeRepo) GetPlayer(_ context.Context, id string) (*domain.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	return f.players[id], nil
}

func (f *fakeRepo) UpsertPlayer(_ context.Context, p *domain.Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.players[p.PlayerID] = &cp
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[id]++
	return nil
}

func (f *fakeRepo) ReplaceScenarios(context.Context, []domain.ScenarioRecord) error { return nil }
func (f *fakeRepo) ListScenarios(context.Context) ([]domain.ScenarioRecord, error)  { return nil, nil }
func (f *fakeRepo) RecordTurn(context.Context, *domain.TurnRecord) error            { return nil }
func (f *fakeRepo) ListTurns(context.Context, string, int) ([]domain.TurnRecord, error) {
	return nil, nil
}
func (f *fakeRepo) CleanupTurns(context.Context, time.Duration) (int64, error) { return 0, nil }
func (f *fakeRepo) Ping(context.Context) error                                 { return nil }
func (f *fakeRepo) Close() error                                               { return nil }

func TestMiddleware_IssuesCookieAndCreatesPlayer(t *testing.T) {
	repo := newFakeRepo()
	var seen string
	h := Middleware(repo, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = PlayerIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !isValidAnonID(seen) {
		t.Fatalf("expected generated anon id in context, got %q", seen)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != seen {
		t.Fatalf("unexpected cookies %v", cookies)
	}
	if cookies[0].Secure {
		t.Error("cookie should not be secure in development")
	}
	if p := repo.players[seen]; p == nil || !strings.HasPrefix(p.Nickname, "dispatcher-") {
		t.Fatalf("expected player to be created, got %+v", p)
	}
}

func TestMiddleware_ReusesValidCookie(t *testing.T) {
	repo := newFakeRepo()
	id := "anon_" + strings.Repeat("ab", 16)
	repo.players[id] = &domain.Player{PlayerID: id}

	var seen string
	h := Middleware(repo, false)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = PlayerIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != id {
		t.Fatalf("expected %q, got %q", id, seen)
	}
	if repo.touched[id] != 1 {
		t.Fatalf("expected last seen to be updated once, got %d", repo.touched[id])
	}
	if c := rec.Result().Cookies(); len(c) != 1 || !c[0].Secure {
		t.Fatalf("expected refreshed secure cookie, got %v", c)
	}
}

func TestMiddleware_RejectsMalformedCookie(t *testing.T) {
	repo := newFakeRepo()
	var seen string
	h := Middleware(repo, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = PlayerIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "anon_../../etc"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen == "anon_../../etc" || !isValidAnonID(seen) {
		t.Fatalf("expected a fresh id, got %q", seen)
	}
}

func TestContextHelpers(t *testing.T) {
	if PlayerIDFromContext(context.Background()) != "" {
		t.Fatal("expected empty player id for bare context")
	}
	ctx := WithPlayer(context.Background(), "anon_0123456789abcdef")
	if PlayerIDFromContext(ctx) != "anon_0123456789abcdef" {
		t.Fatal("player id not carried")
	}
	if NicknameFromContext(ctx) != "dispatcher-abcdef" {
		t.Fatalf("unexpected nickname %q", NicknameFromContext(ctx))
	}
}
