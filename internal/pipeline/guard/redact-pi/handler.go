// internal/pipeline/guard/redact-pi/handler.go
package redactpi

import (
	"regexp"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
)

const (
	TaskType = "redact-pi"
)

type rule struct {
	kind        Kind
	pattern     *regexp.Regexp
	placeholder string
}

// rules run in order over the progressively redacted text. Card numbers
// must be replaced before phone numbers so a 16 digit run is not split.
var rules = []rule{
	{KindSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN_REDACTED]"},
	{KindCard, regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`), "[CARD_REDACTED]"},
	{KindPhone, regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`), "[PHONE_REDACTED]"},
	{KindEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL_REDACTED]"},
}

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	return &Handler{
		config: config,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

// Redact replaces personal identifiers in text. It never fails and
// applying it to its own output changes nothing.
func (h *Handler) Redact(text string) Output {
	out := Output{Text: text}

	for _, r := range rules {
		if h.config.Disabled[r.kind] {
			continue
		}
		n := 0
		out.Text = r.pattern.ReplaceAllStringFunc(out.Text, func(string) string {
			n++
			return r.placeholder
		})
		if n > 0 {
			if out.Counts == nil {
				out.Counts = make(map[Kind]int)
			}
			out.Counts[r.kind] += n
		}
	}

	out.Redacted = out.Text != text
	if out.Redacted {
		h.logger.Info("personal identifiers redacted", map[string]interface{}{
			"counts": out.Counts,
		})
	}

	return out
}

// Execute is the Input/Output form of Redact.
func (h *Handler) Execute(input *Input) *Output {
	out := h.Redact(input.Text)
	return &out
}
