package recommend

import (
	"math"
)

const (
	SourceBlended = "blended"
	SourceRules   = "rules"

	// half-width of the range when only the rules score is known
	fallbackSpread     = 15.0
	fallbackConfidence = 0.5
)

// Score is a blended score with its confidence range
type Score struct {
	Value      float64 `json:"score"`
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Blend combines the AI score a with the heuristic h using weight w for
// the AI side. The range spans both scores, confidence drops with their
// distance.
func Blend(a, h, w float64) Score {
	a, h = clampScore(a), clampScore(h)
	w = math.Min(math.Max(w, 0), 1)
	return Score{
		Value:      round2(w*a + (1-w)*h),
		Low:        math.Min(a, h),
		High:       math.Max(a, h),
		Confidence: round2(1 - math.Abs(a-h)/100),
		Source:     SourceBlended,
	}
}

// RulesOnly is the fallback when no AI score is available
func RulesOnly(h float64) Score {
	h = clampScore(h)
	return Score{
		Value:      h,
		Low:        clampScore(h - fallbackSpread),
		High:       clampScore(h + fallbackSpread),
		Confidence: fallbackConfidence,
		Source:     SourceRules,
	}
}

// PriceRange is a blended price suggestion in cents
type PriceRange struct {
	PriceCents int64   `json:"priceCents"`
	LowCents   int64   `json:"lowCents"`
	HighCents  int64   `json:"highCents"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Rationale  string  `json:"rationale,omitempty"`
}

// BlendPrice combines AI and heuristic prices the same way as Blend:
// weighted price, union of both ranges, confidence from the relative gap
func BlendPrice(ai, h PriceRange, w float64) PriceRange {
	w = math.Min(math.Max(w, 0), 1)
	price := int64(math.Round(w*float64(ai.PriceCents) + (1-w)*float64(h.PriceCents)))
	gap := math.Abs(float64(ai.PriceCents - h.PriceCents))
	top := math.Max(float64(ai.PriceCents), float64(h.PriceCents))
	conf := 1.0
	if top > 0 {
		conf = 1 - gap/top
	}
	return PriceRange{
		PriceCents: price,
		LowCents:   min(ai.LowCents, h.LowCents),
		HighCents:  max(ai.HighCents, h.HighCents),
		Confidence: round2(math.Max(conf, 0)),
		Source:     SourceBlended,
		Rationale:  ai.Rationale,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
