// Package game implements scenario selection and outcome evaluation for
// dispatcher training sessions.
package game

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/dispatch-trainer/internal/domain"
)

// MatchResult is the outcome of evaluating a single rule condition.
type MatchResult int

const (
	NotMatched MatchResult = iota
	Matched
	EvalError
)

func (m MatchResult) String() string {
	switch m {
	case Matched:
		return "matched"
	case NotMatched:
		return "not_matched"
	case EvalError:
		return "eval_error"
	default:
		return "unknown"
	}
}

var (
	errEmptyCondition = errors.New("condition has no variant")
	errNilPredicate   = errors.New("predicate is nil")
)

// Outcome is the graded result of a submitted choice.
type Outcome struct {
	IsCorrect      bool
	Feedback       string
	ExpectedChoice domain.Choice
}

// RuleEvaluator resolves the effective expected choice of a scenario.
type RuleEvaluator struct {
	logger *slog.Logger
}

// NewRuleEvaluator creates an evaluator. A nil logger uses slog.Default().
func NewRuleEvaluator(logger *slog.Logger) *RuleEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEvaluator{logger: logger}
}

// Predict returns the choice a scenario currently expects.
func (e *RuleEvaluator) Predict(s domain.Scenario) domain.Choice {
	choice, _ := e.resolve(s)
	return choice
}

// Evaluate grades a submitted choice against the resolved expectation.
func (e *RuleEvaluator) Evaluate(s domain.Scenario, submitted domain.Choice) Outcome {
	expected, feedback := e.resolve(s)
	return Outcome{
		IsCorrect:      submitted == expected,
		Feedback:       feedback,
		ExpectedChoice: expected,
	}
}

// resolve applies the first matching rule in declared order.
func (e *RuleEvaluator) resolve(s domain.Scenario) (domain.Choice, string) {
	for i, rule := range s.Rules {
		res, err := MatchCondition(rule.Condition, s)
		if res == EvalError {
			e.logger.Warn("Rule condition failed, treating as not matched",
				"scenario_id", s.ID,
				"rule_index", i,
				"error", err)
			continue
		}
		if res != Matched {
			continue
		}
		feedback := s.Feedback
		if rule.OverrideFeedback != "" {
			feedback = rule.OverrideFeedback
		}
		return rule.OverrideChoice, feedback
	}
	return s.CorrectChoice, s.Feedback
}

// MatchCondition evaluates one condition. Panics raised by predicates are
// recovered and reported as EvalError.
func MatchCondition(c domain.Condition, s domain.Scenario) (res MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = EvalError
			err = fmt.Errorf("predicate panicked: %v", r)
		}
	}()

	switch c.Kind {
	case domain.ConditionPredicate:
		if c.Predicate == nil {
			return EvalError, errNilPredicate
		}
		if c.Predicate(s) {
			return Matched, nil
		}
		return NotMatched, nil
	case domain.ConditionFieldMatch:
		for name, want := range c.Fields {
			got, ok := s.Field(name)
			if !ok {
				return EvalError, fmt.Errorf("unknown scenario field %q", name)
			}
			if got != want {
				return NotMatched, nil
			}
		}
		return Matched, nil
	default:
		return EvalError, errEmptyCondition
	}
}
