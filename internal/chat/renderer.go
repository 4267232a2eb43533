// Package chat streams dispatcher chat sessions to clients.
package chat

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashureev/dispatch-trainer/internal/config"
	"github.com/ashureev/dispatch-trainer/internal/domain"
	"github.com/ashureev/dispatch-trainer/internal/game"
)

// Server event types.
const (
	EventTyping  = "typing"
	EventMessage = "message"
	EventNotice  = "notice"
	EventReady   = "ready"
	EventResult  = "result"
	EventState   = "state"
	EventError   = "error"
	EventPong    = "pong"
)

// RestartNotice is shown when every scenario has been played.
const RestartNotice = "All scenarios completed. Starting over."

// MessagePayload is one chat line as presented to the client.
type MessagePayload struct {
	From       domain.Speaker `json:"from"`
	Text       string         `json:"text"`
	Status     string         `json:"status,omitempty"`
	DriverName string         `json:"driver_name,omitempty"`
	Index      int            `json:"index"`
	Total      int            `json:"total"`
}

// Event is a server-to-client message.
type Event struct {
	Type        string               `json:"type"`
	From        domain.Speaker       `json:"from,omitempty"`
	Text        string               `json:"text,omitempty"`
	Message     *MessagePayload      `json:"message,omitempty"`
	Result      *domain.TurnResult   `json:"result,omitempty"`
	State       *domain.SessionState `json:"state,omitempty"`
	ScenarioID  string               `json:"scenario_id,omitempty"`
	Interrupted bool                 `json:"interrupted,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// Emitter delivers events to a client.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// TypingDelay is how long the typing indicator shows before text appears.
func TypingDelay(p config.PacingConfig, text string) time.Duration {
	typing := time.Duration(utf8.RuneCountInString(text)) * p.TypingPerChar
	if typing > p.TypingMax {
		typing = p.TypingMax
	}
	return p.TypingBase + typing
}

// PacedRenderer presents turns through an Emitter, pausing between events
// the way a live chat would.
type PacedRenderer struct {
	emit   Emitter
	pacing config.PacingConfig
	sleep  func(context.Context, time.Duration) error
}

var _ game.Renderer = (*PacedRenderer)(nil)

// NewPacedRenderer creates a renderer. A zero PacingConfig disables pauses
// and typing indicators.
func NewPacedRenderer(emit Emitter, pacing config.PacingConfig) *PacedRenderer {
	return &PacedRenderer{emit: emit, pacing: pacing, sleep: sleep}
}

// PoolRestarted announces a new cycle over the catalog.
func (r *PacedRenderer) PoolRestarted(ctx context.Context) error {
	if err := r.emit.Emit(ctx, Event{Type: EventNotice, From: domain.SpeakerSystem, Text: RestartNotice}); err != nil {
		return err
	}
	return r.sleep(ctx, r.pacing.RestartPause)
}

// Message shows one chat line, preceded by a typing indicator unless it is
// a system line.
func (r *PacedRenderer) Message(ctx context.Context, msg domain.ChatMessage, meta game.MessageMeta) error {
	if msg.Speaker != domain.SpeakerSystem {
		if d := TypingDelay(r.pacing, msg.Text); d > 0 {
			if err := r.emit.Emit(ctx, Event{Type: EventTyping, From: msg.Speaker}); err != nil {
				return err
			}
			if err := r.sleep(ctx, d); err != nil {
				return err
			}
		}
	}

	err := r.emit.Emit(ctx, Event{Type: EventMessage, Message: &MessagePayload{
		From:       msg.Speaker,
		Text:       msg.Text,
		Status:     meta.Status,
		DriverName: meta.DriverName,
		Index:      meta.Index,
		Total:      meta.Total,
	}})
	if err != nil {
		return err
	}
	return r.sleep(ctx, r.pacing.MessageGap)
}

// Outcome echoes the dispatcher's action, then reveals the graded result.
func (r *PacedRenderer) Outcome(ctx context.Context, result domain.TurnResult) error {
	err := r.emit.Emit(ctx, Event{Type: EventMessage, Message: &MessagePayload{
		From: domain.SpeakerSupport,
		Text: result.ChoiceLabel,
	}})
	if err != nil {
		return err
	}
	if err := r.sleep(ctx, r.pacing.FeedbackDelay); err != nil {
		return err
	}
	return r.emit.Emit(ctx, Event{Type: EventResult, Result: &result})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Transcript collects events in memory.
type Transcript struct {
	mu     sync.Mutex
	events []Event
}

// Emit records ev.
func (t *Transcript) Emit(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, ev)
	return nil
}

// Events returns the recorded events.
func (t *Transcript) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

// Messages returns the chat lines among the recorded events.
func (t *Transcript) Messages() []MessagePayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []MessagePayload
	for _, ev := range t.events {
		if ev.Type == EventMessage && ev.Message != nil {
			out = append(out, *ev.Message)
		}
	}
	return out
}
