// internal/pipeline/guard/classify-safety/templates.go
package classifysafety

const (
	TemplateEmergency = "🚨 **This sounds like a medical emergency.**\n\n" +
		"**Please call 911 or go to your nearest emergency room immediately.**\n\n" +
		"I'm designed to provide general health information, not emergency medical care. " +
		"Your safety is the absolute priority, and you need immediate professional medical attention."

	TemplateDiagnosis = "I cannot provide diagnoses or determine what condition you have. This requires " +
		"a trained healthcare provider who can:\n" +
		"• Examine you in person\n" +
		"• Review your complete medical history\n" +
		"• Order and interpret appropriate tests\n" +
		"• Consider your unique circumstances\n\n" +
		"**What I can do:** Help you understand general health information and prepare " +
		"questions to ask your doctor."

	TemplatePrescription = "I cannot prescribe medications or recommend specific treatments. These critical decisions " +
		"must be made by your healthcare provider who:\n" +
		"• Knows your complete medical history\n" +
		"• Can assess drug interactions\n" +
		"• Can monitor for side effects\n" +
		"• Can adjust treatment as needed\n\n" +
		"**What I can do:** Help you understand general information about conditions and " +
		"treatment options to discuss with your doctor."

	TemplateHarmful = "🆘 **I'm concerned about your safety.**\n\n" +
		"If you're experiencing thoughts of self-harm, please reach out for immediate support:\n" +
		"• **988 Suicide & Crisis Lifeline** - Call or text 988\n" +
		"• **Crisis Text Line** - Text HOME to 741741\n" +
		"• **911** - For immediate emergency help\n\n" +
		"You deserve support, and trained professionals are available 24/7 to help you through this."

	TemplateIllicit = "I cannot provide information about illegal activities, substance abuse, or harmful practices. " +
		"If you're struggling with substance use, please reach out to:\n" +
		"• **SAMHSA National Helpline** - 1-800-662-4357 (free, confidential, 24/7)\n" +
		"• Your healthcare provider for treatment referrals\n\n" +
		"Help is available, and recovery is possible."

	TemplateOutOfScope = "This request is outside my capabilities as a health information assistant. " +
		"I'm designed to help you:\n" +
		"• Understand general health information\n" +
		"• Prepare for doctor appointments\n" +
		"• Navigate healthcare systems\n" +
		"• Learn about common conditions\n\n" +
		"I cannot assist with this particular request."

	TemplateNoMedicalRecords = "I cannot interpret or analyze personal medical records, test results, lab values, or images. " +
		"This requires your healthcare provider who can:\n" +
		"• Review your complete medical context\n" +
		"• Compare with baseline values\n" +
		"• Consider your symptoms and history\n" +
		"• Provide personalized guidance\n\n" +
		"**What I can do:** Help you prepare questions to ask your doctor about your results."
)

// Disclaimer is the standard educational-use notice.
func Disclaimer() string {
	return "**Important:** This information is for educational purposes only and does not " +
		"constitute medical advice. Always consult with a qualified healthcare provider " +
		"about your specific health concerns."
}

// EscalationMessage returns guidance for "urgent", "complex" or any other reason.
func EscalationMessage(reason string) string {
	switch reason {
	case "urgent":
		return "⚕️ This situation may need prompt medical attention. Please contact your " +
			"healthcare provider or visit an urgent care clinic soon."
	case "complex":
		return "This is a complex medical question that's best addressed by your healthcare " +
			"team. I recommend scheduling an appointment to discuss this thoroughly with " +
			"your doctor."
	default:
		return "For personalized medical guidance, please consult with your healthcare provider " +
			"who can review your complete medical history and current situation."
	}
}

// SafeResponsePrefix sets expectations at the top of an assistant reply.
func SafeResponsePrefix(hasRAG, hasWeb bool) string {
	var sources []string
	if hasRAG {
		sources = append(sources, "Based on our knowledge base")
	}
	if hasWeb {
		sources = append(sources, "current information")
	}

	switch len(sources) {
	case 0:
		return "I'll help you understand this. Remember, this is general information, not personal medical advice.\n\n"
	case 1:
		return "I'll help you understand this using " + sources[0] + ". Remember, this is general information, not personal medical advice.\n\n"
	default:
		return "I'll help you understand this using " + sources[0] + " and " + sources[1] + ". Remember, this is general information, not personal medical advice.\n\n"
	}
}
