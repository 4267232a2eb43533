package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/config"
	"github.com/ashureev/dispatch-trainer/internal/domain"
	"github.com/ashureev/dispatch-trainer/internal/game"
)

var testPacing = config.PacingConfig{
	TypingBase:    500 * time.Millisecond,
	TypingPerChar: 25 * time.Millisecond,
	TypingMax:     2 * time.Second,
	MessageGap:    300 * time.Millisecond,
	RestartPause:  1500 * time.Millisecond,
	FeedbackDelay: 1200 * time.Millisecond,
}

func TestTypingDelay(t *testing.T) {
	tests := []struct {
		text string
		want time.Duration
	}{
		{"", 500 * time.Millisecond},
		{"hello", 625 * time.Millisecond},
		{"привет", 650 * time.Millisecond},
		{string(make([]byte, 200)), 2500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := TypingDelay(testPacing, tt.text); got != tt.want {
			t.Errorf("TypingDelay(%d runes) = %v, want %v", len([]rune(tt.text)), got, tt.want)
		}
	}
}

func recordingPaced(pacing config.PacingConfig) (*PacedRenderer, *Transcript, *[]time.Duration) {
	tr := &Transcript{}
	r := NewPacedRenderer(tr, pacing)
	var sleeps []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return r, tr, &sleeps
}

func TestPacedRenderer_Message(t *testing.T) {
	r, tr, sleeps := recordingPaced(testPacing)
	ctx := context.Background()

	driver := domain.ChatMessage{Speaker: domain.SpeakerDriver, Text: "hello"}
	if err := r.Message(ctx, driver, game.MessageMeta{Index: 0, Total: 2, Status: "active", DriverName: "Ivan"}); err != nil {
		t.Fatalf("Message failed: %v", err)
	}
	system := domain.ChatMessage{Speaker: domain.SpeakerSystem, Text: "note"}
	if err := r.Message(ctx, system, game.MessageMeta{Index: 1, Total: 2}); err != nil {
		t.Fatalf("Message failed: %v", err)
	}

	events := tr.Events()
	wantTypes := []string{EventTyping, EventMessage, EventMessage}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %+v", len(wantTypes), events)
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event %d = %s, want %s", i, events[i].Type, want)
		}
	}
	if m := events[1].Message; m.DriverName != "Ivan" || m.Status != "active" || m.Total != 2 {
		t.Errorf("unexpected payload %+v", m)
	}

	wantSleeps := []time.Duration{625 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	if len(*sleeps) != len(wantSleeps) {
		t.Fatalf("expected sleeps %v, got %v", wantSleeps, *sleeps)
	}
	for i, want := range wantSleeps {
		if (*sleeps)[i] != want {
			t.Errorf("sleep %d = %v, want %v", i, (*sleeps)[i], want)
		}
	}
}

func TestPacedRenderer_OutcomeAndRestart(t *testing.T) {
	r, tr, sleeps := recordingPaced(testPacing)
	ctx := context.Background()

	if err := r.PoolRestarted(ctx); err != nil {
		t.Fatalf("PoolRestarted failed: %v", err)
	}
	result := domain.TurnResult{Choice: domain.ChoiceLeader, ChoiceLabel: domain.ChoiceLeader.Label(), IsCorrect: true}
	if err := r.Outcome(ctx, result); err != nil {
		t.Fatalf("Outcome failed: %v", err)
	}

	events := tr.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %+v", events)
	}
	if events[0].Type != EventNotice || events[0].Text != RestartNotice {
		t.Errorf("unexpected restart event %+v", events[0])
	}
	if events[1].Message == nil || events[1].Message.From != domain.SpeakerSupport || events[1].Message.Text != result.ChoiceLabel {
		t.Errorf("expected support echo, got %+v", events[1])
	}
	if events[2].Type != EventResult || !events[2].Result.IsCorrect {
		t.Errorf("unexpected result event %+v", events[2])
	}
	if got := *sleeps; len(got) != 2 || got[0] != 1500*time.Millisecond || got[1] != 1200*time.Millisecond {
		t.Errorf("unexpected sleeps %v", got)
	}
}

func TestPacedRenderer_ZeroPacingSkipsTyping(t *testing.T) {
	tr := &Transcript{}
	r := NewPacedRenderer(tr, config.PacingConfig{})
	msg := domain.ChatMessage{Speaker: domain.SpeakerDriver, Text: "hi"}
	if err := r.Message(context.Background(), msg, game.MessageMeta{}); err != nil {
		t.Fatalf("Message failed: %v", err)
	}
	if events := tr.Events(); len(events) != 1 || events[0].Type != EventMessage {
		t.Fatalf("expected only the message event, got %+v", events)
	}
	if msgs := tr.Messages(); len(msgs) != 1 || msgs[0].Text != "hi" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}

func TestPacedRenderer_CanceledDuringTyping(t *testing.T) {
	tr := &Transcript{}
	r := NewPacedRenderer(tr, testPacing)
	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	msg := domain.ChatMessage{Speaker: domain.SpeakerDriver, Text: "hi"}
	if err := r.Message(ctx, msg, game.MessageMeta{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(tr.Messages()) != 0 {
		t.Fatal("message must not appear after cancellation")
	}
}

func TestSleep(t *testing.T) {
	if err := sleep(context.Background(), 0); err != nil {
		t.Fatalf("zero sleep failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep ignored cancellation")
	}
}
