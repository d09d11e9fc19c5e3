package recommend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
	"github.com/projectai397/sakshi-platform-sub002/src/pricing"
)

// CachedAdvisor keeps AI answers in badger for ttl so repeated requests
// for the same profile and candidates do not hit the model
type CachedAdvisor struct {
	Inner Advisor
	db    *badger.DB
	ttl   time.Duration
}

// OpenCache opens the badger cache at path, in memory if path is empty
func OpenCache(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open ai cache")
	}
	return db, nil
}

func NewCachedAdvisor(inner Advisor, db *badger.DB, ttl time.Duration) *CachedAdvisor {
	return &CachedAdvisor{Inner: inner, db: db, ttl: ttl}
}

func (c *CachedAdvisor) Name() string {
	return c.Inner.Name() + "+cache"
}

func (c *CachedAdvisor) ScoreItems(ctx context.Context, p Profile, items []catalog.Item) (map[string]float64, error) {
	key := scoreKey(c.Inner.Name(), p, items)
	var scores map[string]float64
	if c.get(key, &scores) {
		return scores, nil
	}
	scores, err := c.Inner.ScoreItems(ctx, p, items)
	if err != nil {
		return nil, err
	}
	c.put(key, scores)
	return scores, nil
}

func (c *CachedAdvisor) AdvisePrice(ctx context.Context, it catalog.Item, h pricing.Suggestion) (PriceRange, error) {
	key := priceKey(c.Inner.Name(), it, h)
	var pr PriceRange
	if c.get(key, &pr) {
		return pr, nil
	}
	pr, err := c.Inner.AdvisePrice(ctx, it, h)
	if err != nil {
		return PriceRange{}, err
	}
	c.put(key, pr)
	return pr, nil
}

func (c *CachedAdvisor) get(key []byte, out any) bool {
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		zap.L().Warn("ai cache read failed", zap.Error(err))
	}
	return err == nil
}

func (c *CachedAdvisor) put(key []byte, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, data).WithTTL(c.ttl))
	})
	if err != nil {
		zap.L().Warn("ai cache write failed", zap.Error(err))
	}
}

func scoreKey(model string, p Profile, items []catalog.Item) []byte {
	ids := make([]string, len(items))
	for k, it := range items {
		ids[k] = it.ID
	}
	sort.Strings(ids)
	dietary := append([]string(nil), p.Dietary...)
	sort.Strings(dietary)
	prefs := append([]string(nil), p.Preferences...)
	sort.Strings(prefs)
	parts := []string{model, string(p.PrimaryDosha), string(p.SecondaryDosha),
		strings.Join(dietary, ","), strings.Join(prefs, ","), strings.Join(ids, ",")}
	return hashKey("score:", parts)
}

func priceKey(model string, it catalog.Item, h pricing.Suggestion) []byte {
	parts := []string{model, it.ID, string(it.Condition), strconv.FormatInt(it.RetailPriceCents, 10),
		strconv.Itoa(it.Views), strconv.Itoa(it.Favourites), strconv.FormatInt(h.PriceCents, 10)}
	return hashKey("price:", parts)
}

func hashKey(prefix string, parts []string) []byte {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return []byte(prefix + hex.EncodeToString(h[:]))
}
