package catalog

import (
	"context"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	items map[string]Item
	favs  map[string]bool
}

func newMemStore() *memStore {
	return &memStore{items: map[string]Item{}, favs: map[string]bool{}}
}

func (m *memStore) UpsertItem(_ context.Context, it Item) error {
	m.items[it.ID] = it
	return nil
}

func (m *memStore) GetItem(_ context.Context, id string) (Item, error) {
	it, ok := m.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (m *memStore) ListItems(_ context.Context, kind Kind) ([]Item, error) {
	var out []Item
	for _, it := range m.items {
		if kind == "" || it.Kind == kind {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) RecordView(_ context.Context, id string) error {
	it := m.items[id]
	it.Views++
	m.items[id] = it
	return nil
}

func (m *memStore) ToggleFavourite(_ context.Context, id string, userID string) (bool, error) {
	k := id + "/" + userID
	m.favs[k] = !m.favs[k]
	return m.favs[k], nil
}

func TestWashID(t *testing.T) {
	assert.Equal(t, "golden-milk", WashID(" Golden-Milk "))
	assert.Equal(t, "chai_latte2", WashID("Chai_Latte#2"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		item Item
		ok   bool
	}{
		{"cafe ok", Item{ID: "a", Kind: KindCafe, Name: "A", FairPriceCents: 100}, true},
		{"thrift ok", Item{ID: "b", Kind: KindThrift, Name: "B", Condition: ConditionGood}, true},
		{"thrift no condition", Item{ID: "b", Kind: KindThrift, Name: "B"}, false},
		{"cafe with condition", Item{ID: "a", Kind: KindCafe, Name: "A", Condition: ConditionNew}, false},
		{"bad kind", Item{ID: "a", Kind: "spa", Name: "A"}, false},
		{"negative price", Item{ID: "a", Kind: KindCafe, Name: "A", FairPriceCents: -1}, false},
		{"negative stock", Item{ID: "a", Kind: KindCafe, Name: "A", Stock: -2}, false},
		{"no id", Item{Kind: KindCafe, Name: "A"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestUpsertNormalizes(t *testing.T) {
	c := &Catalog{Store: newMemStore()}
	it, err := c.Upsert(context.Background(), Item{
		ID: "Masala Chai", Kind: KindCafe, Name: "Masala Chai", FairPriceCents: 350,
		DoshaTags: []string{"Vata", "vata", " KAPHA "},
	})
	require.NoError(t, err)
	assert.Equal(t, "masalachai", it.ID)
	assert.Equal(t, []string{"vata", "kapha"}, it.DoshaTags)
}

func TestLoadSeed(t *testing.T) {
	f, err := os.Open("testdata/catalog.yaml")
	require.NoError(t, err)
	defer f.Close()

	store := newMemStore()
	c := &Catalog{Store: store}
	n, err := c.LoadSeed(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	milk, err := c.Get(context.Background(), "golden-milk")
	require.NoError(t, err)
	assert.Equal(t, int64(450), milk.FairPriceCents)
	assert.True(t, HasTag(milk.DietaryTags, "VEGAN"))

	thrift, err := c.List(context.Background(), KindThrift)
	require.NoError(t, err)
	require.Len(t, thrift, 1)
	assert.Equal(t, ConditionGood, thrift[0].Condition)
}

func TestLoadSeedRejectsUnknownField(t *testing.T) {
	c := &Catalog{Store: newMemStore()}
	_, err := c.LoadSeed(context.Background(), strings.NewReader("items:\n  - id: x\n    colour: red\n"))
	assert.Error(t, err)
}

func TestViewAndFavourite(t *testing.T) {
	store := newMemStore()
	c := &Catalog{Store: store}
	_, err := c.Upsert(context.Background(), Item{ID: "x", Kind: KindCafe, Name: "X"})
	require.NoError(t, err)

	_, err = c.View(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 1, store.items["x"].Views)

	on, err := c.Favourite(context.Background(), "x", "u1")
	require.NoError(t, err)
	assert.True(t, on)
	on, err = c.Favourite(context.Background(), "x", "u1")
	require.NoError(t, err)
	assert.False(t, on)

	_, err = c.Favourite(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}
