package recommend

import (
	"math"

	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
)

// heuristic weights
const (
	baseScore         = 40.0
	primaryBonus      = 30.0
	secondaryBonus    = 15.0
	tridoshicBonus    = 10.0
	aggravatesPenalty = 20.0
	preferenceBonus   = 5.0
	maxPreference     = 15.0
	tagTridoshic      = "tridoshic"
)

// Heuristic is the rule-based score of one item for one profile
type Heuristic struct {
	Score    float64  `json:"score"`
	Excluded bool     `json:"excluded"`
	Reasons  []string `json:"reasons"`
}

// HeuristicScore scores an item for the profile on a 0..100 scale. Items
// out of stock, and cafe items that miss one of the profile's dietary
// restrictions, are excluded.
func HeuristicScore(p Profile, it catalog.Item) Heuristic {
	if it.Stock <= 0 {
		return Heuristic{Excluded: true, Reasons: []string{"out of stock"}}
	}
	if it.Kind == catalog.KindCafe {
		for _, d := range p.Dietary {
			if !catalog.HasTag(it.DietaryTags, d) {
				return Heuristic{Excluded: true, Reasons: []string{"not " + d}}
			}
		}
	}
	h := Heuristic{Score: baseScore}
	if p.PrimaryDosha != "" && catalog.HasTag(it.DoshaTags, string(p.PrimaryDosha)) {
		h.Score += primaryBonus
		h.Reasons = append(h.Reasons, "balances "+string(p.PrimaryDosha))
	}
	if p.SecondaryDosha != "" && catalog.HasTag(it.DoshaTags, string(p.SecondaryDosha)) {
		h.Score += secondaryBonus
		h.Reasons = append(h.Reasons, "balances "+string(p.SecondaryDosha))
	}
	if catalog.HasTag(it.DoshaTags, tagTridoshic) {
		h.Score += tridoshicBonus
		h.Reasons = append(h.Reasons, "tridoshic")
	}
	if p.PrimaryDosha != "" && catalog.HasTag(it.DoshaTags, "aggravates:"+string(p.PrimaryDosha)) {
		h.Score -= aggravatesPenalty
		h.Reasons = append(h.Reasons, "aggravates "+string(p.PrimaryDosha))
	}
	var pref float64
	for _, pr := range p.Preferences {
		if catalog.HasTag(it.Tags, pr) && pref < maxPreference {
			pref += preferenceBonus
			h.Reasons = append(h.Reasons, "likes "+pr)
		}
	}
	h.Score = clampScore(h.Score + pref)
	return h
}

func clampScore(v float64) float64 {
	return math.Min(math.Max(v, 0), 100)
}
