// internal/pipeline/guard/classify-safety/config.go
package classifysafety

type Config struct {
	Rules []Rule
}

func LoadConfig() *Config {
	return &Config{Rules: DefaultRules()}
}

// DefaultRules returns the cascade in priority order. Earlier rules win when
// a phrase appears in more than one category.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: CategoryEmergency,
			Template: TemplateEmergency,
			Phrases: []string{
				// cardiac
				"heart attack", "chest pain", "chest pressure", "crushing chest",
				// stroke
				"stroke", "can't move", "face drooping", "slurred speech", "arm weakness",
				// respiratory
				"can't breathe", "difficulty breathing", "trouble breathing", "choking",
				"not breathing", "gasping for air",
				// mental health
				"suicidal", "suicide", "kill myself", "end my life", "want to die",
				"harm myself", "hurt myself",
				// bleeding and trauma
				"severe bleeding", "bleeding won't stop", "heavy bleeding", "trauma",
				// consciousness
				"unconscious", "unresponsive", "passed out", "losing consciousness",
				// poisoning
				"overdose", "poisoning", "poisoned", "took too many pills",
				// allergic reaction
				"anaphylaxis", "severe allergic reaction", "throat closing", "can't swallow",
				// seizures
				"seizure", "convulsing", "shaking uncontrollably",
				// severe pain
				"worst pain of my life", "unbearable pain", "excruciating pain",
			},
		},
		{
			Category: CategoryIllicit,
			Template: TemplateIllicit,
			Phrases: []string{
				"get high", "recreational drugs", "illegal drugs", "drug abuse",
				"how to use drugs", "where to buy drugs",
				"fake prescription", "doctor shopping", "forge prescription",
				"hurt someone", "harm others", "poison someone",
				"perform surgery", "diy surgery", "home surgery",
			},
		},
		{
			Category: CategoryHarmful,
			Template: TemplateHarmful,
			Phrases: []string{
				"harm myself", "hurt myself", "kill myself", "end my life",
				"want to die", "commit suicide",
			},
		},
		{
			Category: CategoryDiagnosis,
			Template: TemplateDiagnosis,
			Phrases: []string{
				"do i have", "diagnose me", "what disease", "what condition do i have",
				"tell me what i have", "what's wrong with me", "what illness",
				"is this cancer", "is this diabetes", "is this heart disease",
				"do you think i have", "could this be", "is it possible i have",
				"what causes these symptoms", "what disease causes",
				"diagnose my symptoms", "what condition causes",
			},
		},
		{
			Category: CategoryPrescription,
			Template: TemplatePrescription,
			Phrases: []string{
				"should i take", "prescribe", "what medication", "what drug should",
				"recommend medication", "which medicine",
				"how much should i take", "what dose", "medication dosage",
				"how many pills", "dosage for",
				"can i stop taking", "should i stop taking", "stop my medication", "quit my medication",
				"change my dose", "increase my dose", "decrease my dose",
				"tell me what treatment", "what should i do for", "how do i treat",
				"cure for", "best treatment for",
			},
		},
		{
			Category: CategoryNoMedicalRecords,
			Template: TemplateNoMedicalRecords,
			Phrases: []string{
				"analyze my results", "look at my test", "interpret my labs",
				"read my mri", "analyze this image", "what does my x-ray",
				"what do my labs mean", "interpret my bloodwork",
			},
		},
		{
			Category: CategoryOutOfScope,
			Template: TemplateOutOfScope,
			Phrases: []string{
				"fake medical note", "disability fraud", "fake sick note",
				"lie to doctor", "trick doctor",
				"my dog", "my cat", "my pet", "animal health",
				"miracle cure", "cure cancer naturally", "secret cure",
			},
		},
	}
}
