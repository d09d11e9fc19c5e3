package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
	"github.com/projectai397/sakshi-platform-sub002/src/pricing"
)

const (
	DefaultLimit = 10
	// candidates sent to the model, best heuristic scores first
	maxAICandidates = 25
	aiTimeout       = 20 * time.Second
)

type ItemLister interface {
	List(ctx context.Context, kind catalog.Kind) ([]catalog.Item, error)
}

type Recommendation struct {
	Item    catalog.Item     `json:"item"`
	Prices  pricing.PriceSet `json:"prices"`
	Reasons []string         `json:"reasons"`
	Score
}

type Service struct {
	Items    ItemLister
	Profiles ProfileStore
	Pricing  *pricing.Engine
	AI       Advisor // nil disables the AI side
	AIWeight float64
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	return s.Profiles.GetProfile(ctx, userID)
}

func (s *Service) SaveProfile(ctx context.Context, p Profile) (Profile, error) {
	p, err := p.Normalize()
	if err != nil {
		return Profile{}, err
	}
	if p.UserID == "" {
		return Profile{}, errors.New("profile without user")
	}
	if err := s.Profiles.SaveProfile(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

type candidate struct {
	item catalog.Item
	h    Heuristic
}

// Recommend ranks the items of a kind (all kinds if empty) for the user.
// A user without profile gets the neutral profile.
func (s *Service) Recommend(ctx context.Context, userID string, kind catalog.Kind, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	p, err := s.Profiles.GetProfile(ctx, userID)
	if errors.Is(err, ErrNoProfile) {
		p = Profile{UserID: userID}
	} else if err != nil {
		return nil, err
	}
	items, err := s.Items.List(ctx, kind)
	if err != nil {
		return nil, errors.Wrap(err, "list candidates")
	}
	var cands []candidate
	for _, it := range items {
		h := HeuristicScore(p, it)
		if !h.Excluded {
			cands = append(cands, candidate{item: it, h: h})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].h.Score > cands[j].h.Score })

	aiScores := s.aiScores(ctx, p, cands)
	recs := make([]Recommendation, 0, len(cands))
	for _, c := range cands {
		var sc Score
		if a, ok := aiScores[c.item.ID]; ok {
			sc = Blend(a, c.h.Score, s.AIWeight)
		} else {
			sc = RulesOnly(c.h.Score)
		}
		recs = append(recs, Recommendation{
			Item:    c.item,
			Prices:  s.Pricing.Prices(c.item),
			Reasons: c.h.Reasons,
			Score:   sc,
		})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Value != recs[j].Value {
			return recs[i].Value > recs[j].Value
		}
		return recs[i].Item.ID < recs[j].Item.ID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// aiScores returns nil when the AI side is disabled or fails, which makes
// every candidate fall back to the rules score
func (s *Service) aiScores(ctx context.Context, p Profile, cands []candidate) map[string]float64 {
	if s.AI == nil || len(cands) == 0 {
		return nil
	}
	n := min(len(cands), maxAICandidates)
	items := make([]catalog.Item, n)
	for k := 0; k < n; k++ {
		items[k] = cands[k].item
	}
	ctx, cancel := context.WithTimeout(ctx, aiTimeout)
	defer cancel()
	scores, err := s.AI.ScoreItems(ctx, p, items)
	if err != nil {
		zap.L().Warn("ai scoring failed, using rules", zap.String("advisor", s.AI.Name()), zap.Error(err))
		return nil
	}
	return scores
}

// AdvisePrice suggests a fair price for a thrift item, blending the
// dynamic pricing heuristic with the AI advice when available
func (s *Service) AdvisePrice(ctx context.Context, it catalog.Item) (PriceRange, error) {
	sug, err := s.Pricing.SuggestThriftPrice(it, s.now())
	if err != nil {
		return PriceRange{}, err
	}
	h := PriceRange{
		PriceCents: sug.PriceCents,
		LowCents:   sug.LowCents,
		HighCents:  sug.HighCents,
		Confidence: fallbackConfidence,
		Source:     SourceRules,
	}
	if s.AI == nil {
		return h, nil
	}
	ctx, cancel := context.WithTimeout(ctx, aiTimeout)
	defer cancel()
	ai, err := s.AI.AdvisePrice(ctx, it, sug)
	if err != nil {
		zap.L().Warn("ai price advice failed, using rules", zap.String("item", it.ID), zap.Error(err))
		return h, nil
	}
	res := BlendPrice(ai, h, s.AIWeight)
	res.PriceCents = min(max(s.Pricing.Round(res.PriceCents), res.LowCents), res.HighCents)
	return res, nil
}
