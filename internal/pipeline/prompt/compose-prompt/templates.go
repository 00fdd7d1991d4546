// internal/pipeline/prompt/compose-prompt/templates.go
package composeprompt

const SystemPrompt = `You are WellNavigator, an empathetic health concierge. You advise, not prescribe. You:
• Use plain, empowering language; acknowledge uncertainty; never diagnose or replace clinicians.
• Prefer verified info. If unsure, say so and suggest next steps (contact provider, second opinion).
• When using retrieval or web, cite sources inline with short labels (e.g., "[Mayo Clinic]").
• Offer actionable next steps and questions to ask a provider.
• Safety: decline harmful or out-of-scope requests; escalate emergencies; avoid definitive treatment directives.
• Tone: calm, supportive, precise; avoid jargon unless explaining it.`

const (
	contextHeader    = "\n\n---\n\n**CONTEXT FOR THIS QUERY:**\n\n"
	contextFooter    = "\n\nRemember to cite sources inline when using this information with [Source Label] format."
	knowledgeHeader  = "**Retrieved from Knowledge Base:**\n"
	webHeader        = "**Current Web Information:**\n"
	defaultWebSource = "Web"
	defaultKBSource  = "Unknown"
)

var suggestedPrompts = []string{
	"Help me prepare for my next doctor visit",
	"Explain this medical term or test result in plain English",
	"What questions should I ask my doctor about my diagnosis?",
	"Help me compare treatment options in plain language",
	"Find the right specialist for my symptoms",
	"What lifestyle changes can support my condition?",
	"What does this insurance EOB or bill mean?",
	"What warning signs should I watch for with my condition?",
}

// SuggestedPrompts returns the starter prompts offered to new sessions.
func SuggestedPrompts() []string {
	out := make([]string, len(suggestedPrompts))
	copy(out, suggestedPrompts)
	return out
}
