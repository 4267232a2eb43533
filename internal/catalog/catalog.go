// Package catalog loads scenario catalogs from JSON documents.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/ashureev/dispatch-trainer/internal/domain"
)

//go:embed scenarios.json
var defaultCatalog []byte

var (
	// ErrInvalidScenario is returned when a catalog entry fails validation.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrUnknownPredicate is returned when a rule names an unregistered predicate.
	ErrUnknownPredicate = errors.New("unknown predicate")
)

var predicates = struct {
	mu sync.RWMutex
	m  map[string]func(domain.Scenario) bool
}{m: map[string]func(domain.Scenario) bool{}}

// RegisterPredicate makes a named predicate available to JSON rules written as
// {"condition": {"predicate": "name"}}.
func RegisterPredicate(name string, fn func(domain.Scenario) bool) {
	if name == "" || fn == nil {
		return
	}
	predicates.mu.Lock()
	defer predicates.mu.Unlock()
	predicates.m[name] = fn
}

func lookupPredicate(name string) (func(domain.Scenario) bool, bool) {
	predicates.mu.RLock()
	defer predicates.mu.RUnlock()
	fn, ok := predicates.m[name]
	return fn, ok
}

func init() {
	RegisterPredicate("status_blocked", func(s domain.Scenario) bool { return s.Status == "blocked" })
	RegisterPredicate("anonymous_driver", func(s domain.Scenario) bool { return s.DriverName == "" })
}

type scenarioDoc struct {
	ID            json.RawMessage      `json:"id"`
	Chat          []domain.ChatMessage `json:"chat"`
	CorrectChoice domain.Choice        `json:"correctChoice"`
	Feedback      string               `json:"feedback"`
	Difficulty    *int                 `json:"difficulty"`
	DynamicRules  []ruleDoc            `json:"dynamicRules"`
	Status        string               `json:"status"`
	DriverName    string               `json:"driverName"`
}

type ruleDoc struct {
	Condition        map[string]any `json:"condition"`
	OverrideChoice   domain.Choice  `json:"overrideChoice"`
	OverrideFeedback string         `json:"overrideFeedback"`
}

// Default returns the embedded sample catalog.
func Default() ([]domain.ScenarioRecord, error) {
	return Split(defaultCatalog)
}

// Load reads a catalog from a JSON file, or from every .json file in a
// directory in lexical order.
func Load(path string) ([]domain.ScenarioRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		return Split(data)
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".json" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk catalog dir: %w", err)
	}
	sort.Strings(files)

	var records []domain.ScenarioRecord
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		part, err := Split(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		for _, r := range part {
			r.Position = len(records)
			records = append(records, r)
		}
	}
	return records, nil
}

// Split breaks a JSON array of scenarios into validated records.
func Split(data []byte) ([]domain.ScenarioRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	records := make([]domain.ScenarioRecord, 0, len(raw))
	for i, body := range raw {
		s, err := Parse(body)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		records = append(records, domain.ScenarioRecord{ID: s.ID, Position: i, Body: bytes.Clone(body)})
	}
	return records, nil
}

// Build parses stored records into scenarios, in record order.
func Build(records []domain.ScenarioRecord) ([]domain.Scenario, error) {
	sorted := append([]domain.ScenarioRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	out := make([]domain.Scenario, 0, len(sorted))
	for _, r := range sorted {
		s, err := Parse(r.Body)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", r.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Parse decodes and normalizes one scenario document.
func Parse(body []byte) (domain.Scenario, error) {
	var doc scenarioDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}

	id, err := parseID(doc.ID)
	if err != nil {
		return domain.Scenario{}, err
	}
	s := domain.Scenario{
		ID:            id,
		Chat:          doc.Chat,
		CorrectChoice: doc.CorrectChoice,
		Feedback:      doc.Feedback,
		Status:        doc.Status,
		DriverName:    doc.DriverName,
	}
	if doc.Difficulty != nil {
		s.Difficulty = *doc.Difficulty
	}
	for i, rd := range doc.DynamicRules {
		rule, err := parseRule(rd)
		if err != nil {
			return domain.Scenario{}, fmt.Errorf("%w: %s rule %d: %w", ErrInvalidScenario, id, i, err)
		}
		s.Rules = append(s.Rules, rule)
	}
	if err := Normalize(&s); err != nil {
		return domain.Scenario{}, err
	}
	return s, nil
}

// Normalize applies defaults and validates a scenario.
func Normalize(s *domain.Scenario) error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidScenario)
	}
	if s.Difficulty == 0 {
		s.Difficulty = domain.TierEasy
	}
	if s.Difficulty < domain.TierEasy || s.Difficulty > domain.TierHard {
		return fmt.Errorf("%w: %s difficulty %d out of range", ErrInvalidScenario, s.ID, s.Difficulty)
	}
	if !s.CorrectChoice.Known() {
		return fmt.Errorf("%w: %s correct choice %q", ErrInvalidScenario, s.ID, s.CorrectChoice)
	}
	for i, m := range s.Chat {
		switch m.Speaker {
		case domain.SpeakerDriver, domain.SpeakerSupport, domain.SpeakerSystem:
		default:
			return fmt.Errorf("%w: %s message %d speaker %q", ErrInvalidScenario, s.ID, i, m.Speaker)
		}
	}
	return nil
}

func parseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: missing id", ErrInvalidScenario)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: id: %v", ErrInvalidScenario, err)
	}
	switch id := v.(type) {
	case string:
		return id, nil
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: id must be a string or number", ErrInvalidScenario)
	}
}

func parseRule(rd ruleDoc) (domain.Rule, error) {
	if !rd.OverrideChoice.Known() {
		return domain.Rule{}, fmt.Errorf("override choice %q", rd.OverrideChoice)
	}
	rule := domain.Rule{OverrideChoice: rd.OverrideChoice, OverrideFeedback: rd.OverrideFeedback}

	if name, ok := rd.Condition["predicate"].(string); ok && len(rd.Condition) == 1 {
		fn, found := lookupPredicate(name)
		if !found {
			return domain.Rule{}, fmt.Errorf("%w: %q", ErrUnknownPredicate, name)
		}
		rule.Condition = domain.Predicate(fn)
		return rule, nil
	}

	fields := make(map[string]string, len(rd.Condition))
	for k, v := range rd.Condition {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case float64:
			fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			fields[k] = strconv.FormatBool(val)
		default:
			return domain.Rule{}, fmt.Errorf("condition %q has unsupported value %v", k, v)
		}
	}
	rule.Condition = domain.FieldMatch(fields)
	return rule, nil
}

// Mirror stores the active catalog between restarts.
type Mirror interface {
	ReplaceScenarios(ctx context.Context, records []domain.ScenarioRecord) error
	ListScenarios(ctx context.Context) ([]domain.ScenarioRecord, error)
}

// Bootstrap prepares the catalog a server plays from. A non-empty path
// replaces the mirrored catalog; otherwise the mirror is kept, seeded with
// the embedded default when it is empty.
func Bootstrap(ctx context.Context, m Mirror, path string) ([]domain.Scenario, error) {
	switch {
	case path != "":
		records, err := Load(path)
		if err != nil {
			return nil, err
		}
		if err := m.ReplaceScenarios(ctx, records); err != nil {
			return nil, fmt.Errorf("import catalog: %w", err)
		}
		slog.Info("Catalog imported", "path", path, "scenarios", len(records))
	default:
		existing, err := m.ListScenarios(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stored catalog: %w", err)
		}
		if len(existing) == 0 {
			records, err := Default()
			if err != nil {
				return nil, err
			}
			if err := m.ReplaceScenarios(ctx, records); err != nil {
				return nil, fmt.Errorf("seed default catalog: %w", err)
			}
			slog.Info("Default catalog seeded", "scenarios", len(records))
		}
	}

	records, err := m.ListScenarios(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored catalog: %w", err)
	}
	return Build(records)
}
