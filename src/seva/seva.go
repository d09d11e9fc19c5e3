package seva

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/projectai397/sakshi-platform-sub002/src/utils"
)

const (
	KindSpend    = "spend"
	KindRefund   = "refund"
	KindClawback = "clawback"

	DefaultHistoryLimit = 50
	maxHistoryLimit     = 500
	// precision kept of the sak-per-seva rate
	sakRatePrecision = 6
)

var (
	ErrInsufficient    = errors.New("insufficient seva balance")
	ErrUnknownActivity = errors.New("unknown seva activity")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrKeyReused       = errors.New("idempotency key used for another credit")
)

// DefaultRewards is the seva paid per unit of each activity
var DefaultRewards = map[string]int64{
	"volunteer_hour":     10,
	"community_event":    5,
	"repair_workshop":    8,
	"item_donation":      3,
	"supporter_purchase": 1,
}

// Entry is one row of the append-only seva ledger
type Entry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Delta     int64     `json:"delta"`
	Kind      string    `json:"kind"`
	Ref       string    `json:"ref"`
	IdemKey   string    `json:"idempotencyKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// checkReplay accepts a repeated credit only if it is the same user and kind
func checkReplay(prev, e Entry) error {
	if prev.UserID != e.UserID || prev.Kind != e.Kind {
		return errors.Wrapf(ErrKeyReused, "%q", e.IdemKey)
	}
	return nil
}

type Store interface {
	// Credit adds a positive entry and the sak credit (may be nil) atomically.
	// If the idempotency key is already used the original entry is returned
	// with created=false.
	Credit(ctx context.Context, e Entry, sak *big.Int) (entry Entry, created bool, err error)
	// Debit adds a negative entry, ErrInsufficient if the balance is too low
	Debit(ctx context.Context, e Entry) (Entry, error)
	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]Entry, error)
}

type Service struct {
	Store       Store
	Rewards     map[string]int64
	MaxPerEarn  int64
	SakPerSeva  float64
	SakDecimals uint8
}

func NewService(st Store, s utils.Settings) *Service {
	rewards := s.SevaRewards
	if len(rewards) == 0 {
		rewards = DefaultRewards
	}
	return &Service{
		Store:       st,
		Rewards:     rewards,
		MaxPerEarn:  s.SevaMaxPerEarn,
		SakPerSeva:  s.SakPerSeva,
		SakDecimals: s.SakDecimals,
	}
}

// Reward computes the seva for quantity units of an activity, capped at
// MaxPerEarn
func (s *Service) Reward(activity string, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, ErrInvalidAmount
	}
	per, ok := s.Rewards[activity]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownActivity, "%q", activity)
	}
	amount := per * quantity
	if s.MaxPerEarn > 0 && amount > s.MaxPerEarn {
		amount = s.MaxPerEarn
	}
	return amount, nil
}

// SakCredit converts seva tokens into SAK in decimal-N
func (s *Service) SakCredit(tokens int64) *big.Int {
	if tokens <= 0 || s.SakPerSeva <= 0 {
		return nil
	}
	oneSak := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.SakDecimals)), nil)
	whole := new(big.Int).Mul(big.NewInt(tokens), oneSak)
	return utils.DecNTimesFloat(whole, s.SakPerSeva, sakRatePrecision)
}

// Earn credits the reward for an activity. Repeating an earn with the same
// idempotency key returns the first entry.
func (s *Service) Earn(ctx context.Context, userID, activity string, quantity int64, ref, idemKey string) (Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return Entry{}, errors.New("missing user")
	}
	amount, err := s.Reward(activity, quantity)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{UserID: userID, Delta: amount, Kind: activity, Ref: ref, IdemKey: idemKey}
	e, created, err := s.Store.Credit(ctx, e, s.SakCredit(amount))
	if err != nil {
		return Entry{}, err
	}
	if created {
		zap.L().Info("seva earned", zap.String("user", userID), zap.String("activity", activity),
			zap.Int64("amount", amount))
	}
	return e, nil
}

// Refund returns spent seva. It is idempotent on the key and accrues no SAK.
func (s *Service) Refund(ctx context.Context, userID string, amount int64, ref, idemKey string) (Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return Entry{}, errors.New("missing user")
	}
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	e := Entry{UserID: userID, Delta: amount, Kind: KindRefund, Ref: ref, IdemKey: idemKey}
	e, _, err := s.Store.Credit(ctx, e, nil)
	return e, err
}

func (s *Service) Spend(ctx context.Context, userID string, amount int64, ref string) (Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return Entry{}, errors.New("missing user")
	}
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	return s.Store.Debit(ctx, Entry{UserID: userID, Delta: -amount, Kind: KindSpend, Ref: ref})
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.Store.Balance(ctx, userID)
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.Store.History(ctx, userID, min(limit, maxHistoryLimit))
}
