// internal/pipeline/grounding/retrieve-knowledge/snippets.go
package retrieveknowledge

import "fmt"

// sourceSummaries stand in for chunk text when a bundle was built without it.
var sourceSummaries = map[string]string{
	"Diabetes": "Type 2 diabetes is a chronic condition affecting blood sugar processing. Early signs include increased thirst, fatigue, and blurred vision. Risk factors include family history, obesity, and inactivity. Treatment involves lifestyle changes and medications like metformin.",

	"Hypertension": "High blood pressure (hypertension) is when blood pressure is consistently too high. Normal is under 120/80 mmHg. Lifestyle changes include DASH diet, exercise, weight management, and limiting sodium. Medications include ACE inhibitors and diuretics.",

	"Doctor Visit Prep": "Prepare for doctor visits by gathering medications, medical history, and questions. Bring insurance cards and ID. Ask about treatment options, risks, benefits, and next steps. Keep notes and follow up as recommended.",

	"Test Results": "Common tests include CBC, metabolic panel, and lipid panel. Normal ranges vary by lab and individual. Ask your doctor to explain results in plain language. Keep copies of all results and track trends over time.",

	"Insurance Navigation": "Understand your coverage including deductibles, copays, and networks. Read EOBs carefully. Use in-network providers when possible. Ask about costs before procedures. Appeal denied claims when appropriate.",

	"Medication Management": "Take medications as prescribed. Keep a current medication list. Store medications properly. Be aware of side effects and interactions. Ask your doctor about generic alternatives and cost-saving options.",

	"Specialist Referral": "See specialists for complex conditions, unclear diagnoses, or specialized treatments. Get referrals from your primary doctor. Research specialists' experience and credentials. Prepare for longer appointments with detailed questions.",
}

// passageText prefers stored chunk text, then the source summary, then a generic line.
func passageText(meta ChunkMeta) string {
	if meta.Text != "" {
		return meta.Text
	}
	if s, ok := sourceSummaries[meta.Source]; ok {
		return s
	}
	return fmt.Sprintf("Information about %s from %s medical resources.", meta.Title, meta.Source)
}
