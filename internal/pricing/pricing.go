// Package pricing converts token usage into monetary cost estimates.
package pricing

// Rate holds USD prices per one million tokens.
type Rate struct {
	Input  float64
	Output float64
}

// defaultRate is the conservative fallback for models missing from the
// table. Cost estimation must never block a pipeline from completing.
var defaultRate = Rate{Input: 1.00, Output: 3.00}

// rates maps model identifiers to their per-million-token prices.
var rates = map[string]Rate{
	"deepseek-chat":                  {0.14, 0.28},
	"deepseek-reasoner":              {0.55, 2.19},
	"gpt-4o":                         {2.50, 10.00},
	"gpt-4o-mini":                    {0.15, 0.60},
	"gpt-4.1":                        {2.00, 8.00},
	"gpt-4.1-mini":                   {0.40, 1.60},
	"gpt-4.1-nano":                   {0.10, 0.40},
	"o3-mini":                        {1.10, 4.40},
	"anthropic/claude-sonnet-4":      {3.00, 15.00},
	"anthropic/claude-haiku-4.5":     {0.80, 4.00},
	"google/gemini-2.5-flash-preview": {0.15, 0.60},
	"google/gemini-2.0-flash-001":    {0.10, 0.40},
	"meta-llama/llama-4-maverick":    {0.20, 0.60},
	"qwen/qwen3-235b-a22b":           {0.20, 0.60},
}

// Estimate returns the estimated USD cost of one completion call.
func Estimate(model string, inputTokens, outputTokens int) float64 {
	rate, _ := RateFor(model)
	return (float64(inputTokens)*rate.Input + float64(outputTokens)*rate.Output) / 1_000_000
}

// RateFor returns the rate for a model and whether it was found in the
// table. Unknown models get the default rate.
func RateFor(model string) (Rate, bool) {
	if rate, ok := rates[model]; ok {
		return rate, true
	}
	return defaultRate, false
}
