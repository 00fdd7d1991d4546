// internal/pipeline/grounding/enrich-web-search/sources.go
package enrichwebsearch

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var publishers = map[string]string{
	"mayoclinic.org":      "Mayo Clinic",
	"webmd.com":           "WebMD",
	"healthline.com":      "Healthline",
	"medlineplus.gov":     "MedlinePlus",
	"cdc.gov":             "CDC",
	"nih.gov":             "NIH",
	"who.int":             "WHO",
	"clevelandclinic.org": "Cleveland Clinic",
	"hopkinsmedicine.org": "Johns Hopkins",
	"harvard.edu":         "Harvard Health",
}

// SourceName maps a result URL to a display publisher name.
func SourceName(rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return "Unknown"
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "Web Source"
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if name, ok := publishers[host]; ok {
		return name
	}
	for domain, name := range publishers {
		if strings.HasSuffix(host, "."+domain) {
			return name
		}
	}

	caser := cases.Title(language.Und)
	labels := strings.Split(host, ".")
	for i, l := range labels {
		labels[i] = caser.String(l)
	}
	return strings.Join(labels, ".")
}
