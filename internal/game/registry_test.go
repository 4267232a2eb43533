package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/domain"
)

func newTestRegistry(t *testing.T, seed int64) *Registry {
	t.Helper()
	pool, err := NewScenarioPool(testCatalog(6))
	if err != nil {
		t.Fatalf("NewScenarioPool failed: %v", err)
	}
	return NewRegistry(pool, seed, WithLogger(discardLogger()))
}

func TestRegistry_CreateAndGet(t *testing.T) {
	reg := newTestRegistry(t, 1)

	s, err := reg.Create("p1", domain.ModeSurvival)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.ID == "" || s.PlayerID != "p1" {
		t.Fatalf("unexpected session %+v", s)
	}
	st := s.Controller.Snapshot()
	if !st.IsActive || st.Mode != domain.ModeSurvival || st.Lives != DefaultMaxLives {
		t.Fatalf("session should start active in survival, got %+v", st)
	}

	got, err := reg.Get(s.ID, "p1")
	if err != nil || got != s {
		t.Fatalf("Get returned %v, %v", got, err)
	}
	if _, err := reg.Get(s.ID, "p2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for another player, got %v", err)
	}
	if _, err := reg.Get("missing", "p1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegistry_CreateErrors(t *testing.T) {
	reg := newTestRegistry(t, 1)
	if _, err := reg.Create("p1", domain.ModeMenu); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}

	empty := NewRegistry(nil, 1)
	if _, err := empty.Create("p1", domain.ModeEndless); !errors.Is(err, ErrCatalogEmpty) {
		t.Fatalf("expected ErrCatalogEmpty, got %v", err)
	}
	if reg.Len() != 0 || empty.Len() != 0 {
		t.Fatal("failed creates must not register sessions")
	}
}

func TestRegistry_SeededSessionsAreReproducible(t *testing.T) {
	sequence := func() []string {
		reg := newTestRegistry(t, 99)
		s, err := reg.Create("p1", domain.ModeEndless)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		var out []string
		for i := 0; i < 6; i++ {
			draw, ok := s.Controller.DrawNext(context.Background(), nil)
			if !ok {
				t.Fatal("DrawNext ignored")
			}
			out = append(out, draw.Scenario.ID)
			s.Controller.Submit(context.Background(), draw.Scenario.CorrectChoice, nil)
		}
		return out
	}

	a, b := sequence(), sequence()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs: %v vs %v", i, a, b)
		}
	}
}

func TestRegistry_RemoveEndsSession(t *testing.T) {
	reg := newTestRegistry(t, 1)
	var removed []string
	reg.OnRemove(func(id string) { removed = append(removed, id) })

	s, err := reg.Create("p1", domain.ModeEndless)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := reg.Remove(s.ID, "p2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("another player must not remove the session, got %v", err)
	}
	if err := reg.Remove(s.ID, "p1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if s.Controller.Snapshot().IsActive {
		t.Fatal("removed session should be ended")
	}
	if len(removed) != 1 || removed[0] != s.ID {
		t.Fatalf("expected cleanup callback for %s, got %v", s.ID, removed)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}

func TestRegistry_Sweep(t *testing.T) {
	reg := newTestRegistry(t, 1)
	var removed []string
	reg.OnRemove(func(id string) { removed = append(removed, id) })

	s, err := reg.Create("p1", domain.ModeEndless)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if n := reg.Sweep(time.Hour, time.Now()); n != 0 {
		t.Fatalf("fresh session should survive, swept %d", n)
	}
	if n := reg.Sweep(time.Hour, time.Now().Add(2*time.Hour)); n != 1 {
		t.Fatalf("expected idle session to be swept, got %d", n)
	}
	if len(removed) != 1 || removed[0] != s.ID {
		t.Fatalf("expected cleanup callback, got %v", removed)
	}
	if _, err := reg.Get(s.ID, "p1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("swept session should be gone, got %v", err)
	}
}

func TestRegistry_SweepKeepsProcessingSession(t *testing.T) {
	reg := newTestRegistry(t, 1)
	s, err := reg.Create("p1", domain.ModeEndless)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	swept := -1
	r := &recordingRenderer{}
	r.onMessage = func(i int) {
		if i == 0 {
			swept = reg.Sweep(0, time.Now().Add(time.Hour))
		}
	}
	if _, ok := s.Controller.DrawNext(context.Background(), r); !ok {
		t.Fatal("DrawNext ignored")
	}
	if swept != 0 {
		t.Fatalf("session presenting a turn must not be swept, got %d", swept)
	}
}

func TestRegistry_StartSweeperStopsOnCancel(t *testing.T) {
	reg := newTestRegistry(t, 1)
	if _, err := reg.Create("p1", domain.ModeEndless); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.StartSweeper(ctx, 5*time.Millisecond, time.Nanosecond)

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if reg.Len() != 0 {
		t.Fatal("sweeper did not remove the idle session")
	}
}
