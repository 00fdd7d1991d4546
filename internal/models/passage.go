package models

import (
	"errors"
	"strings"
)

// Origin records where a passage came from.
type Origin string

const (
	OriginKnowledgeBase Origin = "knowledge_base"
	OriginWebSearch     Origin = "web_search"
)

var ErrPassageSourceRequired = errors.New("passage source is required")

// RetrievedPassage is a snippet of external text offered to the model as context.
type RetrievedPassage struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Title  string  `json:"title,omitempty"`
	URL    string  `json:"url,omitempty"`
	Score  float64 `json:"score"`
	Origin Origin  `json:"origin"`
}

// NewKnowledgePassage builds a knowledge-base passage.
func NewKnowledgePassage(text, source, title string, score float64) (RetrievedPassage, error) {
	p := RetrievedPassage{Text: text, Source: source, Title: title, Score: score, Origin: OriginKnowledgeBase}
	return p, p.Validate()
}

// NewWebPassage builds a web-search passage; score defaults to 1.0.
func NewWebPassage(text, source, title, url string) (RetrievedPassage, error) {
	p := RetrievedPassage{Text: text, Source: source, Title: title, URL: url, Score: 1.0, Origin: OriginWebSearch}
	return p, p.Validate()
}

func (p RetrievedPassage) Validate() error {
	if strings.TrimSpace(p.Source) == "" {
		return ErrPassageSourceRequired
	}
	if p.Origin != OriginKnowledgeBase && p.Origin != OriginWebSearch {
		return errors.New("passage origin must be knowledge_base or web_search")
	}
	return nil
}

// Citation points at a passage actually placed into a prompt.
type Citation struct {
	Label  string  `json:"label"`
	Source string  `json:"source"`
	Title  string  `json:"title,omitempty"`
	URL    string  `json:"url,omitempty"`
	Score  float64 `json:"score"`
	Type   Origin  `json:"type"`
}

// Key is the identity used to deduplicate citations within one turn.
func (c Citation) Key() string {
	return string(c.Type) + "\x00" + c.Label + "\x00" + c.Source
}
