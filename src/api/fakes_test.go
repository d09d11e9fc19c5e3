package api

import (
	"context"
	"math/big"
	"sync"

	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
	"github.com/projectai397/sakshi-platform-sub002/src/orders"
	"github.com/projectai397/sakshi-platform-sub002/src/recommend"
	"github.com/projectai397/sakshi-platform-sub002/src/seva"
)

type memCatalog struct {
	mu    sync.Mutex
	items map[string]catalog.Item
	favs  map[string]bool
}

func (m *memCatalog) UpsertItem(_ context.Context, it catalog.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
	return nil
}

func (m *memCatalog) GetItem(_ context.Context, id string) (catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return catalog.Item{}, catalog.ErrNotFound
	}
	return it, nil
}

func (m *memCatalog) ListItems(_ context.Context, kind catalog.Kind) ([]catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Item
	for _, it := range m.items {
		if kind == "" || it.Kind == kind {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memCatalog) RecordView(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.items[id]
	it.Views++
	m.items[id] = it
	return nil
}

func (m *memCatalog) ToggleFavourite(_ context.Context, id string, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := id + "/" + userID
	m.favs[k] = !m.favs[k]
	return m.favs[k], nil
}

type memSeva struct {
	mu      sync.Mutex
	entries []seva.Entry
}

func (m *memSeva) balance(userID string) int64 {
	var b int64
	for _, e := range m.entries {
		if e.UserID == userID {
			b += e.Delta
		}
	}
	return b
}

func (m *memSeva) Credit(_ context.Context, e seva.Entry, _ *big.Int) (seva.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, old := range m.entries {
		if e.IdemKey != "" && old.IdemKey == e.IdemKey {
			return old, false, nil
		}
	}
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return e, true, nil
}

func (m *memSeva) Debit(_ context.Context, e seva.Entry) (seva.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance(e.UserID)+e.Delta < 0 {
		return seva.Entry{}, seva.ErrInsufficient
	}
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memSeva) Balance(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(userID), nil
}

func (m *memSeva) History(_ context.Context, userID string, limit int) ([]seva.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []seva.Entry
	for k := len(m.entries) - 1; k >= 0 && len(out) < limit; k-- {
		if m.entries[k].UserID == userID {
			out = append(out, m.entries[k])
		}
	}
	return out, nil
}

type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]recommend.Profile
}

func (m *memProfiles) GetProfile(_ context.Context, userID string) (recommend.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return recommend.Profile{}, recommend.ErrNoProfile
	}
	return p, nil
}

func (m *memProfiles) SaveProfile(_ context.Context, p recommend.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
	return nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]orders.Order
}

func (m *memOrders) Place(_ context.Context, o orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *memOrders) Get(_ context.Context, id string) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) ListByUser(_ context.Context, userID string) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) SetStatus(_ context.Context, id string, from, to orders.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	if o.Status != from {
		return orders.ErrIllegalTransition
	}
	o.Status = to
	m.orders[id] = o
	return nil
}

func (m *memOrders) Cancel(ctx context.Context, o orders.Order) error {
	return m.SetStatus(ctx, o.ID, o.Status, orders.StatusCancelled)
}
