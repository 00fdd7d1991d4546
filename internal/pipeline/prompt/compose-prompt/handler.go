// internal/pipeline/prompt/compose-prompt/handler.go
package composeprompt

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/models"
)

const (
	TaskType = "compose-prompt"
)

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

// Compose builds the message list for one generation call: a single system
// message (with a context block when passages exist), the recent history and
// the current user input last. Citations list the passages placed in the
// context block, in order, without duplicates. Passages from a source the
// settings switch off are left out.
func (h *Handler) Compose(history []models.Message, userInput string, retrieved, web []models.RetrievedPassage, settings models.Settings) *Output {
	if !settings.RAGOn {
		retrieved = nil
	}
	if !settings.SearchOn {
		web = nil
	}


	var (
		parts     []string
		citations []models.Citation
		seen      = make(map[string]bool)
	)

	addCitations := func(cs []models.Citation) {
		for _, c := range cs {
			if seen[c.Key()] {
				continue
			}
			seen[c.Key()] = true
			citations = append(citations, c)
		}
	}

	if len(retrieved) > 0 {
		block, cs := h.knowledgeBlock(retrieved)
		parts = append(parts, block)
		addCitations(cs)
	}
	if len(web) > 0 {
		block, cs := h.webBlock(web)
		parts = append(parts, block)
		addCitations(cs)
	}

	system := SystemPrompt
	if len(parts) > 0 {
		system += contextHeader + strings.Join(parts, "\n\n") + contextFooter
	}

	recent := h.recentHistory(history)
	messages := make([]models.Message, 0, len(recent)+2)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: system})
	messages = append(messages, recent...)
	messages = append(messages, models.Message{Role: models.RoleUser, Content: userInput})

	h.logger.Debug("prompt composed", map[string]interface{}{
		"model":       settings.Model,
		"messages":    len(messages),
		"citations":   len(citations),
		"kbPassages":  len(h.capped(retrieved)),
		"webPassages": len(h.capped(web)),
	})

	if citations == nil {
		citations = []models.Citation{}
	}
	return &Output{Messages: messages, Citations: citations}
}

func (h *Handler) Execute(input *Input) *Output {
	return h.Compose(input.History, input.UserInput, input.Retrieved, input.Web, input.Settings)
}

func (h *Handler) knowledgeBlock(passages []models.RetrievedPassage) (string, []models.Citation) {
	var b strings.Builder
	b.WriteString(knowledgeHeader)

	passages = h.capped(passages)
	citations := make([]models.Citation, 0, len(passages))
	for i, p := range passages {
		source := p.Source
		if source == "" {
			source = defaultKBSource
		}
		label := SourceLabel(source)

		fmt.Fprintf(&b, "\n[%d] [%s] %s\n", i+1, label, p.Title)
		fmt.Fprintf(&b, "%s\n", strings.TrimSpace(p.Text))

		citations = append(citations, models.Citation{
			Label:  label,
			Source: source,
			Title:  p.Title,
			Score:  p.Score,
			Type:   models.OriginKnowledgeBase,
		})
	}
	return b.String(), citations
}

func (h *Handler) webBlock(passages []models.RetrievedPassage) (string, []models.Citation) {
	var b strings.Builder
	b.WriteString(webHeader)

	passages = h.capped(passages)
	citations := make([]models.Citation, 0, len(passages))
	for i, p := range passages {
		source := p.Source
		if source == "" {
			source = defaultWebSource
		}
		label := fmt.Sprintf("Web%d", i+1)

		fmt.Fprintf(&b, "\n[%d] [%s] %s", i+1, label, source)
		if p.URL != "" {
			fmt.Fprintf(&b, " (%s)", p.URL)
		}
		fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(p.Text))

		citations = append(citations, models.Citation{
			Label:  label,
			Source: source,
			Title:  p.Title,
			URL:    p.URL,
			Score:  p.Score,
			Type:   models.OriginWebSearch,
		})
	}
	return b.String(), citations
}

func (h *Handler) capped(passages []models.RetrievedPassage) []models.RetrievedPassage {
	limit := h.config.MaxPassages
	if limit <= 0 || limit > DefaultMaxPassages {
		limit = DefaultMaxPassages
	}
	if len(passages) > limit {
		return passages[:limit]
	}
	return passages
}

// recentHistory keeps user and assistant messages, then the newest window of them.
func (h *Handler) recentHistory(history []models.Message) []models.Message {
	filtered := make([]models.Message, 0, len(history))
	for _, m := range history {
		if m.Role.IsConversational() {
			filtered = append(filtered, m)
		}
	}

	window := h.config.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if len(filtered) > window {
		filtered = filtered[len(filtered)-window:]
	}
	return filtered
}

// SourceLabel is the inline citation label for a knowledge-base source:
// whitespace removed, at most 15 characters.
func SourceLabel(source string) string {
	runes := make([]rune, 0, len(source))
	for _, r := range source {
		if unicode.IsSpace(r) {
			continue
		}
		runes = append(runes, r)
		if len(runes) == maxLabelRunes {
			break
		}
	}
	return string(runes)
}
