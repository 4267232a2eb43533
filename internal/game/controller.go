package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/domain"
)

var (
	// ErrTurnInProgress is returned when a session cannot change while a turn runs.
	ErrTurnInProgress = errors.New("turn in progress")
	// ErrInvalidMode is returned when starting a session in a non-playable mode.
	ErrInvalidMode = errors.New("invalid game mode")
)

// DefaultMaxLives is the survival rating a session starts with.
const DefaultMaxLives = 5

// MessageMeta carries display data for one rendered chat line.
type MessageMeta struct {
	Index      int
	Total      int
	Status     string
	DriverName string
}

// Renderer presents a turn. Implementations may block to pace output; the
// controller keeps the turn marked as processing until they return.
type Renderer interface {
	PoolRestarted(ctx context.Context) error
	Message(ctx context.Context, msg domain.ChatMessage, meta MessageMeta) error
	Outcome(ctx context.Context, result domain.TurnResult) error
}

// Draw describes the scenario selected for a turn.
type Draw struct {
	Scenario      domain.Scenario
	Tier          int
	PoolExhausted bool
	Interrupted   bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithRand sets the random source used to pick scenarios.
func WithRand(r *rand.Rand) Option { return func(c *Controller) { c.rng = r } }

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithMaxLives sets the survival rating.
func WithMaxLives(n int) Option { return func(c *Controller) { c.maxLives = n } }

// Controller runs the turn loop of one session.
type Controller struct {
	mu         sync.Mutex
	state      domain.SessionState
	generation uint64
	answered   bool
	lastActive time.Time

	pool     *ScenarioPool
	rules    *RuleEvaluator
	guard    *RepetitionGuard
	rng      *rand.Rand
	logger   *slog.Logger
	maxLives int
}

// NewController creates a session controller sitting in the menu.
func NewController(pool *ScenarioPool, opts ...Option) (*Controller, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, ErrCatalogEmpty
	}
	c := &Controller{
		pool:     pool,
		maxLives: DefaultMaxLives,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if c.maxLives <= 0 {
		c.maxLives = DefaultMaxLives
	}
	c.rules = NewRuleEvaluator(c.logger)
	c.guard = NewRepetitionGuard(c.rules)
	c.state = domain.NewSessionState(c.maxLives)
	c.lastActive = time.Now()
	return c, nil
}

// Start begins a fresh session in the given mode.
func (c *Controller) Start(mode domain.Mode) error {
	if mode != domain.ModeEndless && mode != domain.ModeSurvival {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsProcessing {
		return ErrTurnInProgress
	}

	c.generation++
	c.state = domain.NewSessionState(c.maxLives)
	c.state.Mode = mode
	c.state.IsActive = true
	c.answered = false
	c.lastActive = time.Now()

	c.logger.Info("Session started", "mode", mode, "max_lives", c.maxLives)
	return nil
}

// End returns the session to the menu. It is allowed while a turn is being
// presented; the presentation stops at its next checkpoint.
func (c *Controller) End() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.IsActive = false
	c.state.IsProcessing = false
	c.state.Mode = domain.ModeMenu
	c.state.PerformanceStreak = 0
	c.lastActive = time.Now()
}

// DrawNext selects the next scenario and presents it through r. The second
// return value is false when the call was ignored because the session is
// inactive or a turn is already running.
func (c *Controller) DrawNext(ctx context.Context, r Renderer) (Draw, bool) {
	if r == nil {
		r = nopRenderer{}
	}

	c.mu.Lock()
	if !c.state.IsActive || c.state.IsProcessing {
		c.mu.Unlock()
		return Draw{}, false
	}
	c.state.IsProcessing = true
	gen := c.generation
	draw := c.pick()
	c.answered = false
	c.mu.Unlock()

	defer c.finishTurn(gen)

	if draw.PoolExhausted {
		c.logger.Info("All scenarios completed, restarting cycle", "pool_size", c.pool.Len())
		if err := r.PoolRestarted(ctx); err != nil {
			c.logger.Warn("Renderer failed to announce restart", "error", err)
		}
	}

	total := len(draw.Scenario.Chat)
	for i, msg := range draw.Scenario.Chat {
		if ctx.Err() != nil || !c.current(gen) {
			draw.Interrupted = true
			break
		}
		if msg.Text == "" {
			continue
		}
		meta := MessageMeta{Index: i, Total: total, Status: draw.Scenario.Status}
		if msg.Speaker == domain.SpeakerDriver {
			meta.DriverName = draw.Scenario.DriverName
		}
		if err := r.Message(ctx, msg, meta); err != nil {
			c.logger.Warn("Renderer failed to present message", "scenario_id", draw.Scenario.ID, "error", err)
			draw.Interrupted = true
			break
		}
	}
	return draw, true
}

// pick selects the next scenario and records it. Callers hold c.mu.
func (c *Controller) pick() Draw {
	var draw Draw
	candidates := c.pool.AvailableExcluding(c.state.ScenarioHistory)
	if len(candidates) == 0 {
		c.state.ResetCycle()
		candidates = c.pool.All()
		draw.PoolExhausted = true
	}

	draw.Tier = TargetTier(c.state.PerformanceStreak)
	candidates = SelectWithFallback(candidates, draw.Tier)
	candidates = c.guard.Narrow(candidates, c.state.RecentExpected(repeatWindow))

	draw.Scenario = candidates[c.rng.IntN(len(candidates))]
	c.state.RecordScenario(draw.Scenario.ID, c.rules.Predict(draw.Scenario))
	return draw
}

// Submit grades a choice for the current scenario. The second return value is
// false when the call was ignored.
func (c *Controller) Submit(ctx context.Context, choice domain.Choice, r Renderer) (domain.TurnResult, bool) {
	if r == nil {
		r = nopRenderer{}
	}

	c.mu.Lock()
	if c.state.IsProcessing || !c.state.IsActive || c.answered {
		c.mu.Unlock()
		return domain.TurnResult{}, false
	}
	scenario, ok := c.pool.Get(c.state.CurrentScenarioID)
	if !ok {
		c.mu.Unlock()
		return domain.TurnResult{}, false
	}
	c.state.IsProcessing = true
	c.answered = true
	gen := c.generation
	result := c.grade(scenario, choice)
	c.mu.Unlock()

	defer c.finishTurn(gen)

	c.logger.Info("Choice submitted",
		"scenario_id", scenario.ID,
		"choice", choice,
		"correct", result.IsCorrect,
		"streak", result.Streak,
		"game_over", result.IsGameOver)

	if err := r.Outcome(ctx, result); err != nil {
		c.logger.Warn("Renderer failed to present outcome", "error", err)
	}
	return result, true
}

// grade applies an evaluated choice to the session. Callers hold c.mu.
func (c *Controller) grade(s domain.Scenario, choice domain.Choice) domain.TurnResult {
	outcome := c.rules.Evaluate(s, choice)
	result := domain.TurnResult{
		ScenarioID:     s.ID,
		Mode:           c.state.Mode,
		Choice:         choice,
		ChoiceLabel:    choice.Label(),
		IsCorrect:      outcome.IsCorrect,
		FeedbackText:   outcome.Feedback,
		ExpectedChoice: outcome.ExpectedChoice,
	}

	if outcome.IsCorrect {
		c.state.PerformanceStreak++
	} else {
		c.state.PerformanceStreak = 0
		if c.state.Mode == domain.ModeSurvival {
			if c.state.Lives > 0 {
				c.state.Lives--
			}
			if c.state.Lives == 0 {
				result.IsGameOver = true
				c.state.IsActive = false
				result.FeedbackText += "\n\n📉 Your rating has dropped to a critical level. You are removed from the shift."
			} else {
				result.FeedbackText += fmt.Sprintf("\n\n⚠️ Rating lowered. Stars left: %d", c.state.Lives)
			}
		}
	}

	if c.state.Mode == domain.ModeSurvival {
		lives := c.state.Lives
		result.LivesRemaining = &lives
	}
	result.Streak = c.state.PerformanceStreak
	return result
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsActive && c.generation == gen
}

func (c *Controller) finishTurn(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.state.IsProcessing = false
	}
	c.lastActive = time.Now()
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// CurrentScenario returns the scenario in play, if any.
func (c *Controller) CurrentScenario() (domain.Scenario, bool) {
	c.mu.Lock()
	id := c.state.CurrentScenarioID
	c.mu.Unlock()
	return c.pool.Get(id)
}

// LastActive reports when the session last changed.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

type nopRenderer struct{}

func (nopRenderer) PoolRestarted(context.Context) error                            { return nil }
func (nopRenderer) Message(context.Context, domain.ChatMessage, MessageMeta) error { return nil }
func (nopRenderer) Outcome(context.Context, domain.TurnResult) error               { return nil }
