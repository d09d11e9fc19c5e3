package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/projectai397/sakshi-platform-sub002/src/pricing"
	"github.com/projectai397/sakshi-platform-sub002/src/seva"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"

	supporterActivity = "supporter_purchase"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrOutOfStock        = errors.New("insufficient stock")
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrForbidden         = errors.New("not your order")
)

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusFulfilled, StatusCancelled},
}

// CanTransition reports whether an order may move from one status to another
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Line struct {
	ItemID         string `json:"itemId"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type Order struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	Tier           pricing.Tier `json:"tier"`
	Status         Status       `json:"status"`
	Lines          []Line       `json:"lines"`
	SubtotalCents  int64        `json:"subtotalCents"`
	SevaApplied    int64        `json:"sevaApplied"`
	SevaValueCents int64        `json:"sevaValueCents"`
	TotalCents     int64        `json:"totalCents"`
	SevaEarned     int64        `json:"sevaEarned"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

type Store interface {
	// Place decrements stock (ErrOutOfStock), spends the applied seva and
	// stores the order in one transaction
	Place(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// SetStatus moves the order if it is still in status from,
	// ErrIllegalTransition otherwise
	SetStatus(ctx context.Context, id string, from, to Status) error
	// Cancel sets the cancelled status, restores stock, refunds the applied
	// seva and takes back earned seva in one transaction
	Cancel(ctx context.Context, o Order) error
}

type Earner interface {
	Earn(ctx context.Context, userID, activity string, quantity int64, ref, idemKey string) (seva.Entry, error)
}

type Service struct {
	Store   Store
	Pricing *pricing.Engine
	Items   pricing.ItemGetter
	Seva    Earner
}

// Place quotes the lines and places the order. Offered seva beyond the
// allowed share of the subtotal is not spent.
func (s *Service) Place(ctx context.Context, userID string, lines []pricing.Line, tier pricing.Tier, sevaOffered int64) (Order, error) {
	if userID == "" {
		return Order{}, errors.New("missing user")
	}
	q, err := s.Pricing.Quote(ctx, s.Items, lines, tier, sevaOffered)
	if err != nil {
		return Order{}, err
	}
	pricing.SortLines(q.Lines)
	o := Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		Tier:           q.Tier,
		Status:         StatusPending,
		SubtotalCents:  q.SubtotalCents,
		SevaApplied:    q.SevaApplied,
		SevaValueCents: q.SevaValueCents,
		TotalCents:     q.TotalCents,
		SevaEarned:     q.SevaEarned,
	}
	for _, l := range q.Lines {
		o.Lines = append(o.Lines, Line{ItemID: l.ItemID, Name: l.Name, Qty: l.Qty, UnitPriceCents: l.UnitPriceCents})
	}
	if err := s.Store.Place(ctx, o); err != nil {
		return Order{}, err
	}
	zap.L().Info("order placed", zap.String("id", o.ID), zap.String("user", userID),
		zap.String("tier", string(tier)), zap.Int64("total", o.TotalCents), zap.Int64("seva", o.SevaApplied))
	return s.Store.Get(ctx, o.ID)
}

// Get returns the order, ErrForbidden if it belongs to another user and
// the caller is not an admin
func (s *Service) Get(ctx context.Context, id, userID string, admin bool) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrNotFound
	}
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !admin && o.UserID != userID {
		return Order{}, ErrForbidden
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	return s.Store.ListByUser(ctx, userID)
}

func (s *Service) transition(ctx context.Context, o Order, to Status) (Order, error) {
	if !CanTransition(o.Status, to) {
		return Order{}, errors.Wrapf(ErrIllegalTransition, "%s -> %s", o.Status, to)
	}
	if err := s.Store.SetStatus(ctx, o.ID, o.Status, to); err != nil {
		return Order{}, err
	}
	zap.L().Info("order status", zap.String("id", o.ID), zap.String("from", string(o.Status)), zap.String("to", string(to)))
	return s.Store.Get(ctx, o.ID)
}

// MarkPaid marks the order paid and credits the supporter seva. Calling it
// again on a paid order only retries the credit, which is idempotent on the
// order id.
func (s *Service) MarkPaid(ctx context.Context, id string) (Order, error) {
	o, err := s.Get(ctx, id, "", true)
	if err != nil {
		return Order{}, err
	}
	if o.Status != StatusPaid {
		if o, err = s.transition(ctx, o, StatusPaid); err != nil {
			return Order{}, err
		}
	}
	if o.SevaEarned > 0 && s.Seva != nil {
		_, err := s.Seva.Earn(ctx, o.UserID, supporterActivity, o.SevaEarned, o.ID, PaidKey(o.ID))
		if err != nil {
			return Order{}, errors.Wrap(err, "credit supporter seva")
		}
	}
	return o, nil
}

func (s *Service) Fulfil(ctx context.Context, id string) (Order, error) {
	o, err := s.Get(ctx, id, "", true)
	if err != nil {
		return Order{}, err
	}
	return s.transition(ctx, o, StatusFulfilled)
}

// PaidKey is the idempotency key of the supporter credit of a paid order
func PaidKey(orderID string) string {
	return "order-paid:" + orderID
}

// Cancel cancels a pending or paid order of the user (any order for admins)
func (s *Service) Cancel(ctx context.Context, id, userID string, admin bool) (Order, error) {
	o, err := s.Get(ctx, id, userID, admin)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return Order{}, errors.Wrapf(ErrIllegalTransition, "%s -> %s", o.Status, StatusCancelled)
	}
	if err := s.Store.Cancel(ctx, o); err != nil {
		return Order{}, err
	}
	zap.L().Info("order cancelled", zap.String("id", o.ID), zap.Int64("sevaRefund", o.SevaApplied))
	return s.Store.Get(ctx, o.ID)
}
