// Package pricing converts token usage into USD cost.
package pricing

import "strings"

// Usage holds the four token classes reported by the model runtime.
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens"`
	CacheReadTokens     int `json:"cache_read_input_tokens"`
}

// Total returns the sum of all token classes.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheCreationTokens + u.CacheReadTokens
}

// Tier holds per-million-token USD prices for one model tier.
type Tier struct {
	Name          string
	Input         float64
	Output        float64
	CacheCreation float64
	CacheRead     float64
}

// Fixed pricing table. Prices are USD per million tokens. No network lookup —
// these change rarely enough that a code change is the update mechanism.
var tiers = []Tier{
	{Name: "opus", Input: 15.00, Output: 75.00, CacheCreation: 18.75, CacheRead: 1.50},
	{Name: "haiku", Input: 0.80, Output: 4.00, CacheCreation: 1.00, CacheRead: 0.08},
	{Name: "sonnet", Input: 3.00, Output: 15.00, CacheCreation: 3.75, CacheRead: 0.30},
}

// DefaultTier is used when the model name matches no known tier.
var DefaultTier = tiers[2]

// TierFor returns the pricing tier for a model name by substring match.
// Unknown models fall back to sonnet pricing.
func TierFor(model string) Tier {
	lower := strings.ToLower(model)
	for _, t := range tiers {
		if strings.Contains(lower, t.Name) {
			return t
		}
	}
	return DefaultTier
}

// Cost returns the USD cost of the given usage under the given tier.
// Absent token classes are zero and contribute nothing.
func Cost(u Usage, t Tier) float64 {
	const mtok = 1_000_000
	return float64(u.InputTokens)/mtok*t.Input +
		float64(u.OutputTokens)/mtok*t.Output +
		float64(u.CacheCreationTokens)/mtok*t.CacheCreation +
		float64(u.CacheReadTokens)/mtok*t.CacheRead
}
