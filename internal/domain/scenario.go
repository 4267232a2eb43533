package domain

import "strconv"

// Speaker identifies who authored a chat line.
type Speaker string

const (
	SpeakerDriver  Speaker = "driver"
	SpeakerSupport Speaker = "support"
	SpeakerSystem  Speaker = "system"
)

// ChatMessage is a single scripted line of a scenario.
type ChatMessage struct {
	Speaker Speaker `json:"from"`
	Text    string  `json:"text"`
}

// Difficulty tiers.
const (
	TierEasy   = 1
	TierMedium = 2
	TierHard   = 3
)

// Scenario is one scripted chat exchange plus its grading rules.
// Values are treated as immutable once the catalog is loaded.
type Scenario struct {
	ID            string        `json:"id"`
	Chat          []ChatMessage `json:"chat"`
	CorrectChoice Choice        `json:"correctChoice"`
	Feedback      string        `json:"feedback"`
	Difficulty    int           `json:"difficulty"`
	Rules         []Rule        `json:"-"`
	Status        string        `json:"status,omitempty"`
	DriverName    string        `json:"driverName,omitempty"`
}

// Field returns the value of a named scenario field for rule matching.
// The second return value is false for unknown field names.
func (s *Scenario) Field(name string) (string, bool) {
	switch name {
	case "id":
		return s.ID, true
	case "status":
		return s.Status, true
	case "driverName":
		return s.DriverName, true
	case "correctChoice":
		return string(s.CorrectChoice), true
	case "feedback":
		return s.Feedback, true
	case "difficulty":
		return strconv.Itoa(s.Difficulty), true
	default:
		return "", false
	}
}

// ConditionKind tags the variant held by a Condition.
type ConditionKind int

const (
	ConditionNone ConditionKind = iota
	ConditionPredicate
	ConditionFieldMatch
)

// Condition is either a predicate over the scenario or a field-equality mapping.
type Condition struct {
	Kind      ConditionKind
	Predicate func(Scenario) bool
	Fields    map[string]string
}

// Predicate builds a function condition.
func Predicate(fn func(Scenario) bool) Condition {
	return Condition{Kind: ConditionPredicate, Predicate: fn}
}

// FieldMatch builds a condition satisfied when every entry equals the scenario field.
func FieldMatch(fields map[string]string) Condition {
	return Condition{Kind: ConditionFieldMatch, Fields: fields}
}

// Rule overrides the expected choice of a scenario when its condition holds.
type Rule struct {
	Condition        Condition
	OverrideChoice   Choice
	OverrideFeedback string
}

// ScenarioRecord is a catalog entry in its stored JSON form.
type ScenarioRecord struct {
	ID       string
	Position int
	Body     []byte
}
