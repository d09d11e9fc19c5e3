package catalog

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Kind string

const (
	KindCafe   Kind = "cafe"
	KindThrift Kind = "thrift"
)

type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionWorn    Condition = "worn"
)

var ErrNotFound = errors.New("item not found")

// Item is a cafe menu entry or a thrift listing
type Item struct {
	ID               string    `json:"id" yaml:"id"`
	Kind             Kind      `json:"kind" yaml:"kind"`
	Name             string    `json:"name" yaml:"name"`
	Description      string    `json:"description" yaml:"description"`
	FairPriceCents   int64     `json:"fairPriceCents" yaml:"fairPriceCents"`
	CostCents        int64     `json:"costCents" yaml:"costCents"`
	RetailPriceCents int64     `json:"retailPriceCents,omitempty" yaml:"retailPriceCents"`
	Condition        Condition `json:"condition,omitempty" yaml:"condition"`
	DoshaTags        []string  `json:"doshaTags" yaml:"doshaTags"`
	DietaryTags      []string  `json:"dietaryTags" yaml:"dietaryTags"`
	Tags             []string  `json:"tags" yaml:"tags"`
	Stock            int       `json:"stock" yaml:"stock"`
	Views            int       `json:"views" yaml:"-"`
	Favourites       int       `json:"favourites" yaml:"-"`
	ListedAt         time.Time `json:"listedAt" yaml:"-"`
}

type Store interface {
	UpsertItem(ctx context.Context, it Item) error
	GetItem(ctx context.Context, id string) (Item, error)
	ListItems(ctx context.Context, kind Kind) ([]Item, error)
	RecordView(ctx context.Context, id string) error
	ToggleFavourite(ctx context.Context, id string, userID string) (bool, error)
}

type Catalog struct {
	Store Store
}

var idRegex = regexp.MustCompile("[^a-z0-9_-]")

// WashID lower-cases the id and strips everything outside [a-z0-9_-]
func WashID(raw string) string {
	return idRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "")
}

func ValidKind(k Kind) bool {
	return k == KindCafe || k == KindThrift
}

func ValidCondition(c Condition) bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionWorn:
		return true
	}
	return false
}

// Validate checks the invariants of an item before it is stored
func (it Item) Validate() error {
	if it.ID == "" {
		return errors.New("item id empty")
	}
	if !ValidKind(it.Kind) {
		return errors.Errorf("invalid kind %q", it.Kind)
	}
	if it.Name == "" {
		return errors.New("item name empty")
	}
	if it.FairPriceCents < 0 || it.CostCents < 0 || it.RetailPriceCents < 0 {
		return errors.New("negative price")
	}
	if it.Stock < 0 {
		return errors.New("negative stock")
	}
	if it.Kind == KindThrift && !ValidCondition(it.Condition) {
		return errors.Errorf("thrift item needs a condition, got %q", it.Condition)
	}
	if it.Kind == KindCafe && it.Condition != "" {
		return errors.New("cafe items carry no condition")
	}
	return nil
}

// HasTag reports whether tags contains tag (case-insensitive)
func HasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !HasTag(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Upsert washes and validates the item, then stores it
func (c *Catalog) Upsert(ctx context.Context, it Item) (Item, error) {
	it.ID = WashID(it.ID)
	it.DoshaTags = normalizeTags(it.DoshaTags)
	it.DietaryTags = normalizeTags(it.DietaryTags)
	it.Tags = normalizeTags(it.Tags)
	if err := it.Validate(); err != nil {
		return Item{}, err
	}
	if err := c.Store.UpsertItem(ctx, it); err != nil {
		return Item{}, errors.Wrap(err, "upsert item")
	}
	zap.L().Info("item upserted", zap.String("id", it.ID), zap.String("kind", string(it.Kind)))
	return it, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (Item, error) {
	return c.Store.GetItem(ctx, WashID(id))
}

// View returns the item and counts the view, used for demand pricing
func (c *Catalog) View(ctx context.Context, id string) (Item, error) {
	it, err := c.Store.GetItem(ctx, WashID(id))
	if err != nil {
		return Item{}, err
	}
	if err := c.Store.RecordView(ctx, it.ID); err != nil {
		zap.L().Warn("could not record view", zap.String("id", it.ID), zap.Error(err))
	}
	return it, nil
}

func (c *Catalog) List(ctx context.Context, kind Kind) ([]Item, error) {
	if kind != "" && !ValidKind(kind) {
		return nil, errors.Errorf("invalid kind %q", kind)
	}
	return c.Store.ListItems(ctx, kind)
}

// Favourite toggles the user's favourite flag, returns the new state
func (c *Catalog) Favourite(ctx context.Context, id string, userID string) (bool, error) {
	id = WashID(id)
	if _, err := c.Store.GetItem(ctx, id); err != nil {
		return false, err
	}
	return c.Store.ToggleFavourite(ctx, id, userID)
}
