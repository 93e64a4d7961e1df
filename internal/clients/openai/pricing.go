package openai

import "strings"

type modelPrice struct {
	Input  float64 // USD per 1K input tokens
	Output float64 // USD per 1K output tokens
}

// pricing, per 1K tokens, as of October 2025. Unknown models fall back to
// the gpt-4o entry.
var pricing = map[string]modelPrice{
	"gpt-5":         {Input: 0.00125, Output: 0.01},
	"gpt-5-mini":    {Input: 0.00025, Output: 0.002},
	"gpt-5-nano":    {Input: 0.00005, Output: 0.0004},
	"gpt-5-pro":     {Input: 0.015, Output: 0.12},
	"gpt-4.1":       {Input: 0.003, Output: 0.012},
	"gpt-4.1-mini":  {Input: 0.0008, Output: 0.0032},
	"gpt-4.1-nano":  {Input: 0.0002, Output: 0.0008},
	"o4-mini":       {Input: 0.004, Output: 0.016},
	"gpt-4o":        {Input: 0.0025, Output: 0.01},
	"gpt-4o-mini":   {Input: 0.00015, Output: 0.0006},
	"gpt-4-turbo":   {Input: 0.01, Output: 0.03},
	"gpt-4":         {Input: 0.03, Output: 0.06},
}

const fallbackModel = "gpt-4o"

func priceFor(model string) modelPrice {
	if p, ok := pricing[strings.ToLower(strings.TrimSpace(model))]; ok {
		return p
	}
	return pricing[fallbackModel]
}

// Cost computes the USD cost of one call from its token usage.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p := priceFor(model)
	return float64(inputTokens)/1000.0*p.Input + float64(outputTokens)/1000.0*p.Output
}
