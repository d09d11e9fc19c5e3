package pricing

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
)

type Tier string

const (
	TierCommunity Tier = "community"
	TierFair      Tier = "fair"
	TierSupporter Tier = "supporter"
)

var ErrInvalidTier = errors.New("invalid price tier")

func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierCommunity, TierFair, TierSupporter:
		return Tier(s), nil
	}
	return "", errors.Wrapf(ErrInvalidTier, "%q", s)
}

// Config holds the triple pricing parameters. Bps values are basis
// points of the fair price.
type Config struct {
	CommunityBps     int64
	SupporterBps     int64
	RoundingCents    int64
	SevaValueCents   int64 // value of one seva token at checkout
	MaxSevaShareBps  int64 // share of the subtotal payable with seva
	SevaEarnPerCents int64 // supporter surplus needed to earn one seva
}

func DefaultConfig() Config {
	return Config{
		CommunityBps:     7500,
		SupporterBps:     13000,
		RoundingCents:    5,
		SevaValueCents:   100,
		MaxSevaShareBps:  5000,
		SevaEarnPerCents: 500,
	}
}

// WithDefaults fills zero fields from DefaultConfig
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.CommunityBps == 0 {
		c.CommunityBps = d.CommunityBps
	}
	if c.SupporterBps == 0 {
		c.SupporterBps = d.SupporterBps
	}
	if c.RoundingCents <= 0 {
		c.RoundingCents = d.RoundingCents
	}
	if c.SevaValueCents <= 0 {
		c.SevaValueCents = d.SevaValueCents
	}
	if c.MaxSevaShareBps == 0 {
		c.MaxSevaShareBps = d.MaxSevaShareBps
	}
	if c.SevaEarnPerCents <= 0 {
		c.SevaEarnPerCents = d.SevaEarnPerCents
	}
	return c
}

// PriceSet holds the three tier prices of one item in cents.
// Community <= Fair <= Supporter always holds.
type PriceSet struct {
	Community int64 `json:"community"`
	Fair      int64 `json:"fair"`
	Supporter int64 `json:"supporter"`
}

func (p PriceSet) For(t Tier) (int64, error) {
	switch t {
	case TierCommunity:
		return p.Community, nil
	case TierFair:
		return p.Fair, nil
	case TierSupporter:
		return p.Supporter, nil
	}
	return 0, ErrInvalidTier
}

type ItemGetter interface {
	Get(ctx context.Context, id string) (catalog.Item, error)
}

type Engine struct {
	Config Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{Config: cfg.WithDefaults()}
}

// Prices derives the tier prices of an item from its fair price. The same
// rule applies to cafe and thrift items.
func (e *Engine) Prices(it catalog.Item) PriceSet {
	fair := it.FairPriceCents
	if fair <= 0 {
		return PriceSet{}
	}
	step := e.Config.RoundingCents
	community := roundDown(fair*e.Config.CommunityBps/10000, step)
	community = min(max(community, it.CostCents), fair)
	supporter := roundUp(ceilDiv(fair*e.Config.SupporterBps, 10000), step)
	supporter = max(supporter, fair)
	return PriceSet{Community: community, Fair: fair, Supporter: supporter}
}

type Line struct {
	ItemID string `json:"itemId"`
	Qty    int    `json:"qty"`
}

type QuoteLine struct {
	ItemID         string `json:"itemId"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	FairPriceCents int64  `json:"fairPriceCents"`
	LineCents      int64  `json:"lineCents"`
}

type Quote struct {
	Tier           Tier        `json:"tier"`
	Lines          []QuoteLine `json:"lines"`
	SubtotalCents  int64       `json:"subtotalCents"`
	SevaApplied    int64       `json:"sevaApplied"`
	SevaValueCents int64       `json:"sevaValueCents"`
	TotalCents     int64       `json:"totalCents"`
	SevaEarned     int64       `json:"sevaEarned"`
}

// MergeLines validates quantities and merges duplicate items, keeping the
// order of first appearance
func MergeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, errors.New("no order lines")
	}
	idx := make(map[string]int)
	var out []Line
	for _, l := range lines {
		id := catalog.WashID(l.ItemID)
		if id == "" {
			return nil, errors.New("empty item id")
		}
		if l.Qty <= 0 {
			return nil, errors.Errorf("invalid quantity %d for %s", l.Qty, id)
		}
		if k, ok := idx[id]; ok {
			out[k].Qty += l.Qty
			continue
		}
		idx[id] = len(out)
		out = append(out, Line{ItemID: id, Qty: l.Qty})
	}
	return out, nil
}

// Quote prices the lines at the given tier and applies up to sevaOffered
// seva tokens, limited by the configured share of the subtotal
func (e *Engine) Quote(ctx context.Context, items ItemGetter, lines []Line, tier Tier, sevaOffered int64) (Quote, error) {
	if _, err := ParseTier(string(tier)); err != nil {
		return Quote{}, err
	}
	if sevaOffered < 0 {
		return Quote{}, errors.New("negative seva amount")
	}
	merged, err := MergeLines(lines)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{Tier: tier}
	var surplus int64
	for _, l := range merged {
		it, err := items.Get(ctx, l.ItemID)
		if err != nil {
			return Quote{}, errors.Wrapf(err, "item %s", l.ItemID)
		}
		ps := e.Prices(it)
		unit, _ := ps.For(tier)
		line := QuoteLine{
			ItemID:         it.ID,
			Name:           it.Name,
			Qty:            l.Qty,
			UnitPriceCents: unit,
			FairPriceCents: ps.Fair,
			LineCents:      unit * int64(l.Qty),
		}
		q.Lines = append(q.Lines, line)
		q.SubtotalCents += line.LineCents
		surplus += (unit - ps.Fair) * int64(l.Qty)
	}
	maxSevaValue := q.SubtotalCents * e.Config.MaxSevaShareBps / 10000
	maxTokens := maxSevaValue / e.Config.SevaValueCents
	q.SevaApplied = min(sevaOffered, maxTokens)
	q.SevaValueCents = q.SevaApplied * e.Config.SevaValueCents
	q.TotalCents = q.SubtotalCents - q.SevaValueCents
	if tier == TierSupporter && surplus > 0 {
		q.SevaEarned = surplus / e.Config.SevaEarnPerCents
	}
	return q, nil
}

// SortLines orders quote lines by item id, used where a stable lock order
// is needed
func SortLines(lines []QuoteLine) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })
}

func roundDown(v, step int64) int64 {
	return v - v%step
}

func roundUp(v, step int64) int64 {
	return ceilDiv(v, step) * step
}

func roundNearest(v, step int64) int64 {
	return (v + step/2) / step * step
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// Round rounds cents to the nearest configured step
func (e *Engine) Round(v int64) int64 {
	return roundNearest(v, e.Config.RoundingCents)
}
