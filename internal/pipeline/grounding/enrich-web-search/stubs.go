// internal/pipeline/grounding/enrich-web-search/stubs.go
package enrichwebsearch

import (
	"fmt"
	"strings"
)

type topicStubs struct {
	terms   []string
	results []Result
}

var topics = []topicStubs{
	{
		terms: []string{"diabetes", "blood sugar", "insulin"},
		results: []Result{
			{
				Title:   "American Diabetes Association - Diabetes Management",
				Snippet: "Comprehensive diabetes information, management strategies, and resources from the leading diabetes organization.",
				URL:     "https://www.diabetes.org",
				Source:  "American Diabetes Association",
			},
			{
				Title:   "CDC - Diabetes Prevention and Management",
				Snippet: "Evidence-based information about diabetes prevention, management, and complications from the Centers for Disease Control.",
				URL:     "https://www.cdc.gov/diabetes",
				Source:  "CDC",
			},
		},
	},
	{
		terms: []string{"blood pressure", "hypertension", "high bp"},
		results: []Result{
			{
				Title:   "American Heart Association - Blood Pressure Resources",
				Snippet: "Expert guidance on blood pressure management, healthy lifestyle choices, and cardiovascular health.",
				URL:     "https://www.heart.org",
				Source:  "American Heart Association",
			},
		},
	},
	{
		terms: []string{"doctor", "appointment", "visit"},
		results: []Result{
			{
				Title:   "AHRQ - Tips for Doctor Visits",
				Snippet: "Evidence-based tips for making the most of your healthcare appointments from the Agency for Healthcare Research and Quality.",
				URL:     "https://www.ahrq.gov",
				Source:  "AHRQ",
			},
		},
	},
}

// stubResults returns the deterministic offline result list: three general
// publishers followed by topic matches, unique by title, at most k long.
func stubResults(query string, k int) []Result {
	q := strings.ToLower(query)

	all := []Result{
		{
			Title:   "Mayo Clinic - Comprehensive Health Information",
			Snippet: fmt.Sprintf("Expert medical information and resources about %s. Mayo Clinic provides trusted health guidance from medical professionals.", q),
			URL:     "https://www.mayoclinic.org",
			Source:  "Mayo Clinic",
		},
		{
			Title:   "MedlinePlus - Reliable Health Information",
			Snippet: fmt.Sprintf("Authoritative health information from the National Library of Medicine about %s. Includes symptoms, treatments, and prevention.", q),
			URL:     "https://medlineplus.gov",
			Source:  "MedlinePlus",
		},
		{
			Title:   "WebMD - Health Information and Resources",
			Snippet: fmt.Sprintf("Comprehensive health information about %s. Find symptoms, treatments, and expert medical advice.", q),
			URL:     "https://www.webmd.com",
			Source:  "WebMD",
		},
	}

	for _, topic := range topics {
		if containsAny(q, topic.terms) {
			all = append(all, topic.results...)
		}
	}

	seen := make(map[string]bool)
	out := make([]Result, 0, k)
	for _, r := range all {
		if len(out) >= k {
			break
		}
		if seen[r.Title] {
			continue
		}
		seen[r.Title] = true
		out = append(out, r)
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
