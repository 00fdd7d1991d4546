// internal/pipeline/guard/classify-safety/handler.go
package classifysafety

import (
	"strings"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
)

const (
	TaskType = "classify-safety"
)

// apostrophes folds typographic quotes so "can’t breathe" matches "can't breathe".
var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

type Handler struct {
	rules  []Rule
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	if config == nil || len(config.Rules) == 0 {
		config = LoadConfig()
	}
	rules := make([]Rule, len(config.Rules))
	for i, r := range config.Rules {
		phrases := make([]string, len(r.Phrases))
		for j, p := range r.Phrases {
			phrases[j] = normalize(p)
		}
		rules[i] = Rule{Category: r.Category, Phrases: phrases, Template: r.Template}
	}

	return &Handler{
		rules: rules,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

// Classify walks the cascade and stops at the first rule with a matching phrase.
func (h *Handler) Classify(text string) Decision {
	lowered := normalize(text)

	for _, rule := range h.rules {
		for _, phrase := range rule.Phrases {
			if strings.Contains(lowered, phrase) {
				h.logger.Info("request refused", map[string]interface{}{
					"category": string(rule.Category),
				})
				return Decision{
					Refuse:   true,
					Category: rule.Category,
					Template: rule.Template,
					Phrase:   phrase,
				}
			}
		}
	}

	return Decision{}
}

// Execute is the Input form of Classify.
func (h *Handler) Execute(input *Input) *Decision {
	d := h.Classify(input.Text)
	return &d
}

// IsSafe is the inverse of Classify(text).Refuse.
func (h *Handler) IsSafe(text string) (bool, string) {
	d := h.Classify(text)
	return !d.Refuse, d.Template
}

// Template returns the fixed text for a category.
func (h *Handler) Template(c Category) (string, bool) {
	for _, r := range h.rules {
		if r.Category == c {
			return r.Template, true
		}
	}
	return "", false
}

func normalize(s string) string {
	return strings.ToLower(apostrophes.Replace(s))
}
