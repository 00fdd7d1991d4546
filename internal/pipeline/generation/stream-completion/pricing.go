// internal/pipeline/generation/stream-completion/pricing.go
package streamcompletion

import "sort"

// Pricing is USD per 1,000 tokens.
type Pricing struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

var pricingTable = map[string]Pricing{
	"gpt-4o":              {Input: 0.0025, Output: 0.01},
	"gpt-4o-mini":         {Input: 0.00015, Output: 0.0006},
	"gpt-4-turbo":         {Input: 0.01, Output: 0.03},
	"gpt-4-turbo-preview": {Input: 0.01, Output: 0.03},
	"gpt-3.5-turbo":       {Input: 0.0005, Output: 0.0015},
	"gpt-3.5-turbo-0125":  {Input: 0.0005, Output: 0.0015},
}

// PriceFor returns the model's pricing; unknown models are priced as gpt-4o-mini.
func PriceFor(model string) Pricing {
	if p, ok := pricingTable[model]; ok {
		return p
	}
	return pricingTable[DefaultModel]
}

// Cost is the USD cost of a call.
func Cost(tokensIn, tokensOut int, model string) float64 {
	p := PriceFor(model)
	return float64(tokensIn)/1000*p.Input + float64(tokensOut)/1000*p.Output
}

// AvailableModels lists the priced models in name order.
func AvailableModels() []string {
	out := make([]string, 0, len(pricingTable))
	for m := range pricingTable {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
