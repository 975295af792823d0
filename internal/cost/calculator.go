// Package cost estimates Claude API spend from token usage.
package cost

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Rates maps model IDs to their pricing.
type Rates map[string]ModelRate

// sessionInputShare is the assumed input fraction of a session's total
// tokens. Extraction prompts embed full document text while responses are
// compact JSON, so sessions run heavily input-side.
const sessionInputShare = 0.9

// fallbackModel prices unknown model IDs.
const fallbackModel = "claude-sonnet-4-5-20250929"

// Calculator computes costs for Claude API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for one Claude API call with exact token counts.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int) float64 {
	rate, ok := c.rates[model]
	if !ok {
		rate, ok = c.rates[fallbackModel]
		if !ok {
			return 0
		}
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// EstimateSession estimates spend for a session from its total token count.
// Sessions track combined input+output tokens, so the split is assumed.
func (c *Calculator) EstimateSession(model string, totalTokens int) float64 {
	input := int(float64(totalTokens) * sessionInputShare)
	output := totalTokens - input
	return c.Claude(model, input, output, 0, 0)
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001": {
			Input: 0.80, Output: 4.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-sonnet-4-5-20250929": {
			Input: 3.00, Output: 15.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-opus-4-6": {
			Input: 15.00, Output: 75.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
	}
}
