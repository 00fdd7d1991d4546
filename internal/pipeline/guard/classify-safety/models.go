// internal/pipeline/guard/classify-safety/models.go
package classifysafety

// Category is a refusal class. Each category maps to exactly one template.
type Category string

const (
	CategoryEmergency        Category = "emergency"
	CategoryIllicit          Category = "illicit"
	CategoryHarmful          Category = "harmful"
	CategoryDiagnosis        Category = "diagnosis"
	CategoryPrescription     Category = "prescription"
	CategoryNoMedicalRecords Category = "no_medical_records"
	CategoryOutOfScope       Category = "out_of_scope"
)

// Rule is one step of the cascade. Rules are evaluated in slice order.
type Rule struct {
	Category Category
	Phrases  []string
	Template string
}

type Input struct {
	Text string `json:"text"`
}

// Decision is the classifier verdict. Template is returned verbatim.
type Decision struct {
	Refuse   bool     `json:"refuse"`
	Category Category `json:"category,omitempty"`
	Template string   `json:"template,omitempty"`
	Phrase   string   `json:"-"`
}
