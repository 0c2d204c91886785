package llm

import (
	"errors"
	"fmt"
)

// ErrUnknownTask marks a request for a model under an unrecognized task
// name. This is a misconfiguration, never silently defaulted.
var ErrUnknownTask = errors.New("llm: unknown task")

// complexityThreshold is the score above which synthesis escalates to the
// high-capability model when the always-pro policy is off.
const complexityThreshold = 0.5

// AllowedModels is the explicit allow-list; any configured model outside it
// fails validation at startup.
var AllowedModels = map[string]bool{
	"gemini-2.5-flash":   true,
	"gemini-2.5-pro":     true,
	"text-embedding-004": true,
}

// SelectorConfig holds the model assignments and escalation policy flags.
type SelectorConfig struct {
	TaskModels    map[string]string
	ProModel      string
	FallbackModel string

	ProForSynthesis     bool
	ProForComplex       bool
	ProForContradiction bool
}

// Selector deterministically picks the backing model for a logical task.
// Read-only after validated construction.
type Selector struct {
	cfg SelectorConfig
}

// NewSelector validates every configured model against the allow-list and
// fails fast on the first violation.
func NewSelector(cfg SelectorConfig) (*Selector, error) {
	models := []string{cfg.ProModel, cfg.FallbackModel}
	for _, m := range cfg.TaskModels {
		models = append(models, m)
	}
	for _, m := range models {
		if !AllowedModels[m] {
			return nil, fmt.Errorf("llm: model %q is not in the allow-list", m)
		}
	}
	return &Selector{cfg: cfg}, nil
}

// ForTask returns the model assigned to a logical task name.
func (s *Selector) ForTask(task string) (string, error) {
	model, ok := s.cfg.TaskModels[task]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	return model, nil
}

// ForSynthesis picks the synthesis model. The always-pro policy flag wins
// unconditionally; otherwise complexity or contradictory evidence escalates
// to the high-capability model, and the fallback applies last.
func (s *Selector) ForSynthesis(complexity float64, hasContradictions bool) string {
	if s.cfg.ProForSynthesis {
		return s.cfg.ProModel
	}
	if complexity > complexityThreshold && s.cfg.ProForComplex {
		return s.cfg.ProModel
	}
	if hasContradictions && s.cfg.ProForContradiction {
		return s.cfg.ProModel
	}
	return s.cfg.FallbackModel
}
