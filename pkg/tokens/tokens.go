// Package tokens provides token usage accounting for generation calls.
//
// Cost computation is pure: a Rates value converts raw token counts to a USD
// cost, rounded to six decimal places. Aggregation sums raw token counts
// across calls first and computes cost once from the totals, since summing
// per-call costs would accumulate rounding drift.
package tokens

import "math"

// costPrecision is the number of decimal places a computed cost is rounded to.
const costPrecision = 6

// Rates holds per-million-token USD pricing for a generation backend.
type Rates struct {
	// InputPerMTok is the USD price per one million input tokens.
	InputPerMTok float64

	// OutputPerMTok is the USD price per one million output tokens.
	OutputPerMTok float64
}

// Usage records the token consumption of a single generation call.
type Usage struct {
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Summary aggregates usage across multiple generation calls.
// TotalCostUSD is recomputed from the summed token counts.
type Summary struct {
	Calls             int     `json:"calls"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
}

// Cost converts token counts to a USD cost rounded to six decimal places.
func (r Rates) Cost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) / 1_000_000.0 * r.InputPerMTok
	outputCost := float64(outputTokens) / 1_000_000.0 * r.OutputPerMTok
	return round(inputCost + outputCost)
}

// NewUsage builds a Usage with the cost precomputed from the given rates.
func NewUsage(r Rates, inputTokens, outputTokens int64) Usage {
	return Usage{
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		EstimatedCostUSD: r.Cost(inputTokens, outputTokens),
	}
}

// Summarize aggregates a list of usages. Token counts are summed and the
// total cost is computed once from the totals.
func Summarize(r Rates, usages []Usage) Summary {
	var s Summary
	for _, u := range usages {
		s.Add(u)
	}
	s.FinalizeCost(r)
	return s
}

// Add folds one call's token counts into the summary. TotalCostUSD is left
// untouched; call FinalizeCost after the last addition.
func (s *Summary) Add(u Usage) {
	s.Calls++
	s.TotalInputTokens += u.InputTokens
	s.TotalOutputTokens += u.OutputTokens
}

// Merge folds another summary's calls and token counts into this one.
// TotalCostUSD is left untouched; call FinalizeCost after the last merge.
func (s *Summary) Merge(other Summary) {
	s.Calls += other.Calls
	s.TotalInputTokens += other.TotalInputTokens
	s.TotalOutputTokens += other.TotalOutputTokens
}

// FinalizeCost recomputes TotalCostUSD from the summed token counts, never
// from per-call costs, so per-call rounding does not accumulate.
func (s *Summary) FinalizeCost(r Rates) {
	s.TotalCostUSD = r.Cost(s.TotalInputTokens, s.TotalOutputTokens)
}

func round(v float64) float64 {
	shift := math.Pow(10, costPrecision)
	return math.Round(v*shift) / shift
}
