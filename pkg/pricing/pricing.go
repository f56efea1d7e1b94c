// Package pricing maps model names to per-1K-token rates and computes the
// dollar cost of a generation.
package pricing

import "strings"

// Rate holds per-1K-token pricing for a model.
type Rate struct {
	InputPerKTok  float64 `yaml:"input_per_1k" json:"input_per_1k"`
	OutputPerKTok float64 `yaml:"output_per_1k" json:"output_per_1k"`
}

// Table maps model names (or family prefixes) to rates.
type Table map[string]Rate

// defaultRate is used for unknown models (conservative to prevent silent
// overspend).
var defaultRate = Rate{InputPerKTok: 0.03, OutputPerKTok: 0.06}

// Default returns the built-in pricing table.
func Default() Table {
	return Table{
		"gpt-3.5-turbo": {InputPerKTok: 0.001, OutputPerKTok: 0.002},
		"gpt-4":         {InputPerKTok: 0.03, OutputPerKTok: 0.06},
		"gpt-4o":        {InputPerKTok: 0.0025, OutputPerKTok: 0.01},
		"gpt-4o-mini":   {InputPerKTok: 0.00015, OutputPerKTok: 0.0006},
	}
}

// Merge overlays other onto t, returning a new table. Entries in other win.
func (t Table) Merge(other Table) Table {
	merged := make(Table, len(t)+len(other))
	for k, v := range t {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// Lookup returns the rate for a model. Tries exact match, then family prefix
// match (longest prefix wins), then the conservative default.
func (t Table) Lookup(model string) Rate {
	if r, ok := t[model]; ok {
		return r
	}

	bestPrefix := ""
	var best Rate
	for prefix, r := range t {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			best = r
		}
	}
	if bestPrefix != "" {
		return best
	}
	return defaultRate
}

// Cost computes the USD cost of a request from token counts.
func (t Table) Cost(model string, tokensIn, tokensOut int) float64 {
	r := t.Lookup(model)
	return float64(tokensIn)/1000*r.InputPerKTok + float64(tokensOut)/1000*r.OutputPerKTok
}
