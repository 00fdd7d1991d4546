// internal/pipeline/prompt/compose-prompt/handler_test.go
package composeprompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kb(source, title, text string, score float64) models.RetrievedPassage {
	return models.RetrievedPassage{Text: text, Source: source, Title: title, Score: score, Origin: models.OriginKnowledgeBase}
}

func web(source, url, text string) models.RetrievedPassage {
	return models.RetrievedPassage{Text: text, Source: source, URL: url, Score: 1.0, Origin: models.OriginWebSearch}
}

var allSources = models.Settings{Model: "gpt-4o-mini", Temperature: 0.7, RAGOn: true, SearchOn: true}

func newHandler(t *testing.T) *Handler {
	return NewHandler(LoadConfig(), logger.NewTestLogger(t))
}

func TestCompose_NoContext(t *testing.T) {
	h := newHandler(t)

	out := h.Compose(nil, "What is an A1C test?", nil, nil, allSources)

	require.Len(t, out.Messages, 2)
	assert.Equal(t, models.RoleSystem, out.Messages[0].Role)
	assert.Equal(t, SystemPrompt, out.Messages[0].Content)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "What is an A1C test?"}, out.Messages[1])
	assert.Empty(t, out.Citations)
	assert.NotNil(t, out.Citations)
}

func TestCompose_KnowledgeBlockFormat(t *testing.T) {
	h := newHandler(t)

	out := h.Compose(nil, "q", []models.RetrievedPassage{
		kb("Doctor Visit Prep", "Before your visit", "  Bring a list of medications.  ", 0.91),
	}, nil, allSources)

	want := SystemPrompt +
		"\n\n---\n\n**CONTEXT FOR THIS QUERY:**\n\n" +
		"**Retrieved from Knowledge Base:**\n" +
		"\n[1] [DoctorVisitPrep] Before your visit\n" +
		"Bring a list of medications.\n" +
		"\n\nRemember to cite sources inline when using this information with [Source Label] format."
	assert.Equal(t, want, out.Messages[0].Content)

	require.Len(t, out.Citations, 1)
	assert.Equal(t, models.Citation{
		Label:  "DoctorVisitPrep",
		Source: "Doctor Visit Prep",
		Title:  "Before your visit",
		Score:  0.91,
		Type:   models.OriginKnowledgeBase,
	}, out.Citations[0])
}

func TestCompose_WebBlockFormat(t *testing.T) {
	h := newHandler(t)

	out := h.Compose(nil, "q", nil, []models.RetrievedPassage{
		web("Mayo Clinic", "https://www.mayoclinic.org", "Expert info."),
		web("", "", "No source or url."),
	}, allSources)

	system := out.Messages[0].Content
	assert.Contains(t, system, "**Current Web Information:**\n"+
		"\n[1] [Web1] Mayo Clinic (https://www.mayoclinic.org)\nExpert info.\n"+
		"\n[2] [Web2] Web\nNo source or url.\n")
	assert.NotContains(t, system, "Retrieved from Knowledge Base")

	require.Len(t, out.Citations, 2)
	assert.Equal(t, "Web1", out.Citations[0].Label)
	assert.Equal(t, "https://www.mayoclinic.org", out.Citations[0].URL)
	assert.Equal(t, models.OriginWebSearch, out.Citations[1].Type)
	assert.Equal(t, "Web", out.Citations[1].Source)
}

func TestCompose_KnowledgeBeforeWeb(t *testing.T) {
	h := newHandler(t)

	out := h.Compose(nil, "q",
		[]models.RetrievedPassage{kb("CDC", "Diabetes", "kb text", 0.8)},
		[]models.RetrievedPassage{web("WebMD", "https://www.webmd.com", "web text")},
		allSources,
	)

	system := out.Messages[0].Content
	kbAt := strings.Index(system, "**Retrieved from Knowledge Base:**")
	webAt := strings.Index(system, "**Current Web Information:**")
	require.True(t, kbAt > 0 && webAt > 0)
	assert.Less(t, kbAt, webAt)
	assert.Contains(t, system, "kb text\n\n\n**Current Web Information:**")

	require.Len(t, out.Citations, 2)
	assert.Equal(t, models.OriginKnowledgeBase, out.Citations[0].Type)
	assert.Equal(t, models.OriginWebSearch, out.Citations[1].Type)
}

func TestCompose_CapsEachPassageType(t *testing.T) {
	h := newHandler(t)

	var retrieved, webResults []models.RetrievedPassage
	for i := 0; i < 8; i++ {
		retrieved = append(retrieved, kb(fmt.Sprintf("Source %d", i), "t", "text", 0.5))
		webResults = append(webResults, web(fmt.Sprintf("Site %d", i), "", "text"))
	}

	out := h.Compose(nil, "q", retrieved, webResults, allSources)
	system := out.Messages[0].Content

	assert.Contains(t, system, "[5] [Source4]")
	assert.NotContains(t, system, "[6] [Source5]")
	assert.Contains(t, system, "[5] [Web5]")
	assert.NotContains(t, system, "[Web6]")
	assert.Len(t, out.Citations, 10)
}

func TestCompose_CitationsUnique(t *testing.T) {
	h := newHandler(t)

	out := h.Compose(nil, "q", []models.RetrievedPassage{
		kb("CDC", "Diabetes basics", "a", 0.9),
		kb("CDC", "Diabetes basics", "b", 0.8),
		kb("Hypertension", "BP", "c", 0.7),
	}, nil, allSources)

	require.Len(t, out.Citations, 2)
	seen := make(map[string]bool)
	for _, c := range out.Citations {
		assert.False(t, seen[c.Key()])
		seen[c.Key()] = true
	}
	assert.Equal(t, 0.9, out.Citations[0].Score, "first occurrence wins")
	assert.Contains(t, out.Messages[0].Content, "[2] [CDC] Diabetes basics\nb\n")
}

func TestCompose_SettingsGateSources(t *testing.T) {
	h := newHandler(t)
	retrieved := []models.RetrievedPassage{kb("CDC", "Diabetes", "kb text", 0.8)}
	webResults := []models.RetrievedPassage{web("WebMD", "https://www.webmd.com", "web text")}

	kbOnly := allSources
	kbOnly.SearchOn = false
	out := h.Compose(nil, "q", retrieved, webResults, kbOnly)
	assert.Contains(t, out.Messages[0].Content, "**Retrieved from Knowledge Base:**")
	assert.NotContains(t, out.Messages[0].Content, "**Current Web Information:**")
	require.Len(t, out.Citations, 1)
	assert.Equal(t, models.OriginKnowledgeBase, out.Citations[0].Type)

	none := models.Settings{Model: "gpt-4o-mini"}
	out = h.Compose(nil, "q", retrieved, webResults, none)
	assert.Equal(t, SystemPrompt, out.Messages[0].Content)
	assert.Empty(t, out.Citations)
}

func TestExecute_PassesSettings(t *testing.T) {
	h := newHandler(t)

	out := h.Execute(&Input{
		UserInput: "q",
		Web:       []models.RetrievedPassage{web("WebMD", "", "web text")},
		Settings:  models.Settings{Model: "gpt-4o-mini", SearchOn: true},
	})
	require.Len(t, out.Citations, 1)
	assert.Equal(t, "Web1", out.Citations[0].Label)
}

func TestCompose_History(t *testing.T) {
	h := newHandler(t)

	var history []models.Message
	history = append(history, models.Message{Role: models.RoleSystem, Content: "old system"})
	for i := 0; i < 12; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		history = append(history, models.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}
	history = append(history, models.Message{Role: models.RoleSystem, Content: "late system"})

	out := h.Compose(history, "now", nil, nil, allSources)

	require.Len(t, out.Messages, 12)
	assert.Equal(t, models.RoleSystem, out.Messages[0].Role)
	assert.Equal(t, "m2", out.Messages[1].Content)
	assert.Equal(t, "m11", out.Messages[10].Content)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "now"}, out.Messages[11])

	systemCount := 0
	for _, m := range out.Messages {
		if m.Role == models.RoleSystem {
			systemCount++
		}
	}
	assert.Equal(t, 1, systemCount)
}

func TestCompose_ShortHistoryKeptInOrder(t *testing.T) {
	h := newHandler(t)

	history := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}
	out := h.Compose(history, "next", nil, nil, allSources)

	require.Len(t, out.Messages, 4)
	assert.Equal(t, "hi", out.Messages[1].Content)
	assert.Equal(t, "hello", out.Messages[2].Content)
}

func TestSourceLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CDC", "CDC"},
		{"Doctor Visit Prep", "DoctorVisitPrep"},
		{"Insurance Navigation", "InsuranceNaviga"},
		{"American Diabetes Association", "AmericanDiabete"},
		{"Clínica Médica Española", "ClínicaMédicaEs"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceLabel(tt.in))
		})
	}
}

func TestSuggestedPrompts(t *testing.T) {
	prompts := SuggestedPrompts()
	require.Len(t, prompts, 8)
	assert.Equal(t, "Help me prepare for my next doctor visit", prompts[0])

	prompts[0] = "changed"
	assert.Equal(t, "Help me prepare for my next doctor visit", SuggestedPrompts()[0])
}
