package pricing

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
)

var conditionFactor = map[catalog.Condition]float64{
	catalog.ConditionNew:     1.0,
	catalog.ConditionLikeNew: 0.85,
	catalog.ConditionGood:    0.7,
	catalog.ConditionFair:    0.55,
	catalog.ConditionWorn:    0.4,
}

const (
	demandMin = 0.7
	demandMax = 1.3
	// suggestion range is +-10% around the suggested price
	rangeSpreadPct = 10
)

// Suggestion is a suggested fair price for a thrift listing
type Suggestion struct {
	PriceCents      int64   `json:"priceCents"`
	LowCents        int64   `json:"lowCents"`
	HighCents       int64   `json:"highCents"`
	ConditionFactor float64 `json:"conditionFactor"`
	DemandFactor    float64 `json:"demandFactor"`
}

// DemandFactor rises with favourites and views and decays with listing age
func DemandFactor(favourites, views int, daysListed float64) float64 {
	d := 1 + 0.02*float64(favourites) + 0.002*float64(views) - 0.01*daysListed
	return math.Min(math.Max(d, demandMin), demandMax)
}

// SuggestThriftPrice is the heuristic dynamic price of a thrift item:
// retail price discounted by condition and scaled by demand
func (e *Engine) SuggestThriftPrice(it catalog.Item, now time.Time) (Suggestion, error) {
	if it.Kind != catalog.KindThrift {
		return Suggestion{}, errors.New("price suggestions are for thrift items")
	}
	cf, ok := conditionFactor[it.Condition]
	if !ok {
		return Suggestion{}, errors.Errorf("unknown condition %q", it.Condition)
	}
	base := it.RetailPriceCents
	if base == 0 {
		base = it.FairPriceCents
	}
	var days float64
	if !it.ListedAt.IsZero() && now.After(it.ListedAt) {
		days = now.Sub(it.ListedAt).Hours() / 24
	}
	df := DemandFactor(it.Favourites, it.Views, days)
	step := e.Config.RoundingCents
	price := roundNearest(int64(math.Round(float64(base)*cf*df)), step)
	return Suggestion{
		PriceCents:      price,
		LowCents:        roundDown(price*(100-rangeSpreadPct)/100, step),
		HighCents:       roundUp(ceilDiv(price*(100+rangeSpreadPct), 100), step),
		ConditionFactor: cf,
		DemandFactor:    df,
	}, nil
}
